package storage

import (
	"bytes"
	"context"
	"fmt"

	storage_go "github.com/supabase-community/storage-go"
)

// Put uploads bytes under the given key and returns the public URL. Upsert is
// enabled so a regeneration of the same filename replaces the prior object
// instead of failing on a key conflict.
func (s *Service) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	upsert := true
	_, err := s.sbClient.UploadFile(s.bucket, key, bytes.NewReader(data), storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to supabase: %w", err)
	}

	publicURL := s.sbClient.GetPublicUrl(s.bucket, key)
	return publicURL.SignedURL, nil
}

// Delete removes the object under key. Used to unwind a stored image whose
// token debit turned out to be impossible.
func (s *Service) Delete(ctx context.Context, key string) error {
	_, err := s.sbClient.RemoveFile(s.bucket, []string{key})
	if err != nil {
		return fmt.Errorf("failed to delete from supabase: %w", err)
	}
	return nil
}
