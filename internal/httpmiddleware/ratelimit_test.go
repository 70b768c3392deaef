package httpmiddleware

import "testing"

func TestTokenBucketExhaustion(t *testing.T) {
	l := NewSimpleTokenBucket(3, 3)
	for i := 0; i < 3; i++ {
		if !l.allow("10.0.0.1") {
			t.Fatalf("request %d unexpectedly limited", i+1)
		}
	}
	if l.allow("10.0.0.1") {
		t.Fatal("request over capacity was allowed")
	}
}

func TestTokenBucketIsolatesClients(t *testing.T) {
	l := NewSimpleTokenBucket(1, 1)
	if !l.allow("10.0.0.1") {
		t.Fatal("first client's first request limited")
	}
	if l.allow("10.0.0.1") {
		t.Fatal("first client not limited after exhaustion")
	}
	if !l.allow("10.0.0.2") {
		t.Fatal("second client limited by first client's usage")
	}
}

func TestTokenBucketDefaultsCapacity(t *testing.T) {
	l := NewSimpleTokenBucket(0, 7)
	if l.capacity != 7 {
		t.Fatalf("capacity = %d, want per-minute rate 7", l.capacity)
	}
}
