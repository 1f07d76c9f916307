// Package storage archives call audio to a Supabase bucket. Archival is
// best effort and runs off the pipeline's critical path.
package storage

import (
	"bytes"
	"fmt"

	"github.com/supabase-community/supabase-go"
)

type Config struct {
	URL            string
	ServiceRoleKey string
	Bucket         string
}

// Enabled reports whether archival is configured at all.
func (c Config) Enabled() bool {
	return c.URL != "" && c.ServiceRoleKey != "" && c.Bucket != ""
}

type Archive struct {
	client *supabase.Client
	bucket string
}

// New builds the archive client. Returns an error instead of panicking so
// a misconfigured deployment can start without archival.
func New(config Config) (*Archive, error) {
	client, err := supabase.NewClient(config.URL, config.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &Archive{client: client, bucket: config.Bucket}, nil
}

// Upload stores data under key in the configured bucket.
func (a *Archive) Upload(key, contentType string, data []byte) error {
	_, err := a.client.Storage.UploadFile(a.bucket, key, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("upload %s to supabase: %w", key, err)
	}
	return nil
}
