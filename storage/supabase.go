package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/raushankrgupta/nima-backend/utils"
	storage_go "github.com/supabase-community/storage-go"
)

// SupabaseStore keeps objects in a public Supabase storage bucket.
type SupabaseStore struct {
	client  *storage_go.Client
	bucket  string
	baseURL string
}

func NewSupabaseStore(supabaseURL, serviceRoleKey, bucket string) (*SupabaseStore, error) {
	if supabaseURL == "" || serviceRoleKey == "" {
		return nil, errors.New("SUPABASE_URL and SUPABASE_KEY must be set")
	}
	baseURL := strings.TrimSuffix(supabaseURL, "/")

	return &SupabaseStore{
		client:  storage_go.NewClient(baseURL+"/storage/v1", serviceRoleKey, nil),
		bucket:  bucket,
		baseURL: baseURL,
	}, nil
}

func (s *SupabaseStore) Upload(_ context.Context, key string, data []byte, contentType string) (string, error) {
	upsert := true
	_, err := s.client.UploadFile(s.bucket, key, bytes.NewReader(data), storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}
	return key, nil
}

func (s *SupabaseStore) Download(ctx context.Context, ref string) ([]byte, error) {
	if data, remote, err := downloadRemote(ctx, ref); remote {
		return data, err
	}
	data, err := s.client.DownloadFile(s.bucket, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	return data, nil
}

func (s *SupabaseStore) ResolveURL(_ context.Context, ref string) (string, error) {
	if ref == "" || utils.IsAbsoluteURL(ref) {
		return ref, nil
	}
	return s.PublicURL(ref), nil
}

func (s *SupabaseStore) PublicURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, key)
}
