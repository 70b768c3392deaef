package imagestore

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Store saves an image and returns a retrievable URL or path. Check-in
// evidence goes through this interface regardless of backend.
type Store interface {
	Store(ctx context.Context, data []byte, filename string) (string, error)
}

// MaxImageBytes bounds accepted uploads.
const MaxImageBytes = 5 << 20

var (
	ErrNotAnImage = errors.New("only image files are accepted")
	ErrTooLarge   = errors.New("image exceeds the 5MB limit")
)

// validateImage sniffs the payload; both backends call it before storing.
func validateImage(data []byte) error {
	if len(data) > MaxImageBytes {
		return ErrTooLarge
	}
	if !strings.HasPrefix(http.DetectContentType(data), "image/") {
		return ErrNotAnImage
	}
	return nil
}
