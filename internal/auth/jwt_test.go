package auth

import (
	"testing"
	"time"
)

const (
	testKey    = "test-signing-key"
	testIssuer = "attendtrack"
)

func TestIssueAndParse(t *testing.T) {
	pair, err := Issue("emp-1", "employee", testIssuer, testKey, time.Hour, 24*time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("empty token in pair")
	}

	claims, err := Parse(pair.AccessToken, testKey, testIssuer)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "emp-1" {
		t.Errorf("subject = %q, want emp-1", claims.Subject)
	}
	if claims.Role != "employee" {
		t.Errorf("role = %q, want employee", claims.Role)
	}
}

func TestParseRejectsWrongKey(t *testing.T) {
	pair, err := Issue("emp-1", "employee", testIssuer, testKey, time.Hour, 24*time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := Parse(pair.AccessToken, "another-key", testIssuer); err == nil {
		t.Fatal("expected signature validation error")
	}
}

func TestParseRejectsIssuerMismatch(t *testing.T) {
	pair, err := Issue("emp-1", "employee", "someone-else", testKey, time.Hour, 24*time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := Parse(pair.AccessToken, testKey, testIssuer); err == nil {
		t.Fatal("expected issuer mismatch error")
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	pair, err := Issue("emp-1", "employee", testIssuer, testKey, -time.Minute, -time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := Parse(pair.AccessToken, testKey, testIssuer); err == nil {
		t.Fatal("expected expiry error")
	}
}
