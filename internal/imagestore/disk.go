package imagestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Disk stores images under a local directory and returns paths below BaseURL.
type Disk struct {
	Dir     string
	BaseURL string // URL prefix the HTTP layer serves Dir under, e.g. "/uploads"
}

// NewDisk creates the upload directory if needed.
func NewDisk(dir, baseURL string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Disk{Dir: dir, BaseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Store writes the image with a unique name derived from the original
// extension and returns its serving path.
func (d *Disk) Store(_ context.Context, data []byte, filename string) (string, error) {
	if err := validateImage(data); err != nil {
		return "", err
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = ".jpg"
	}
	name := fmt.Sprintf("%d-%s%s", time.Now().UnixMilli(), uuid.NewString()[:8], ext)
	if err := os.WriteFile(filepath.Join(d.Dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return d.BaseURL + "/" + name, nil
}
