// Package storage keeps generated and uploaded images. Records persist the
// storage key; a fetchable URL is resolved only when a record is read.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raushankrgupta/nima-backend/utils"
)

var ErrNotFound = errors.New("object not found")

type FileStore interface {
	// Upload stores data under key and returns the key.
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Download reads a storage key or an absolute URL.
	Download(ctx context.Context, ref string) ([]byte, error)
	// ResolveURL turns a storage key into a fetchable URL. Absolute URLs pass through.
	ResolveURL(ctx context.Context, ref string) (string, error)
}

// NewKey builds a unique object key under prefix, e.g. looks/<user>/2025/03/<uuid>.png.
func NewKey(prefix, ext string) string {
	d := time.Now().UTC()
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "jpg"
	}
	return path.Join(prefix, fmt.Sprintf("%d/%02d/%s.%s", d.Year(), d.Month(), uuid.NewString(), ext))
}

// ExtFor returns a file extension for an image content type.
func ExtFor(contentType string) string {
	switch {
	case strings.Contains(contentType, "png"):
		return "png"
	case strings.Contains(contentType, "webp"):
		return "webp"
	default:
		return "jpg"
	}
}

// ResolveAll resolves every ref. A ref that fails to resolve is returned as is.
func ResolveAll(ctx context.Context, fs FileStore, refs []string) []string {
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		if url, err := fs.ResolveURL(ctx, ref); err == nil {
			out = append(out, url)
		} else {
			out = append(out, ref)
		}
	}
	return out
}

func downloadRemote(ctx context.Context, ref string) ([]byte, bool, error) {
	if !utils.IsAbsoluteURL(ref) {
		return nil, false, nil
	}
	data, _, err := utils.FetchURL(ctx, ref)
	return data, true, err
}

// Memory is an in-process FileStore used by tests and local runs without object storage.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
	baseURL string
}

func NewMemory(baseURL string) *Memory {
	return &Memory{objects: make(map[string][]byte), baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (m *Memory) Upload(_ context.Context, key string, data []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	return key, nil
}

func (m *Memory) Download(ctx context.Context, ref string) ([]byte, error) {
	if data, remote, err := downloadRemote(ctx, ref); remote {
		return data, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[ref]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

func (m *Memory) ResolveURL(_ context.Context, ref string) (string, error) {
	if ref == "" || utils.IsAbsoluteURL(ref) {
		return ref, nil
	}
	return m.baseURL + "/" + ref, nil
}
