package challenge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Backend makes an HTTP-01 response reachable at
// /.well-known/acme-challenge/<token>.
type Backend interface {
	Publish(ctx context.Context, token, content string) error
	Cleanup(ctx context.Context, token string) error
}

// RecordStore is the persisted single-record challenge storage.
type RecordStore interface {
	SetChallengeResponse(ctx context.Context, response string) error
}

// SelectBackend returns the filesystem backend when dir is set and the record
// backend otherwise. Nothing but dir affects the choice.
func SelectBackend(dir string, records RecordStore) Backend {
	if dir != "" {
		return NewFileBackend(dir)
	}
	return NewRecordBackend(records)
}

// FileBackend writes responses as files named by token into a directory
// served by an existing web server.
type FileBackend struct {
	dir string
}

// NewFileBackend creates a FileBackend rooted at dir.
func NewFileBackend(dir string) *FileBackend {
	return &FileBackend{dir: dir}
}

// Dir returns the challenge directory.
func (b *FileBackend) Dir() string {
	return b.dir
}

// Publish writes content to dir/token, creating dir if needed.
func (b *FileBackend) Publish(ctx context.Context, token, content string) error {
	if err := validToken(token); err != nil {
		return err
	}
	if err := os.MkdirAll(b.dir, 0755); err != nil {
		return fmt.Errorf("create challenge dir: %w", err)
	}

	challengeFile := filepath.Join(b.dir, token)
	if err := os.WriteFile(challengeFile, []byte(content), 0644); err != nil {
		return fmt.Errorf("write challenge file: %w", err)
	}
	return nil
}

// Cleanup removes the challenge file. A missing file is not an error.
func (b *FileBackend) Cleanup(ctx context.Context, token string) error {
	if err := validToken(token); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(b.dir, token))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove challenge file: %w", err)
	}
	return nil
}

// RecordBackend stores the response in the shared challenge record, which
// the responder serves dynamically. It holds one response at a time.
type RecordBackend struct {
	records RecordStore
}

// NewRecordBackend creates a RecordBackend.
func NewRecordBackend(records RecordStore) *RecordBackend {
	return &RecordBackend{records: records}
}

func (b *RecordBackend) Publish(ctx context.Context, token, content string) error {
	if b.records == nil {
		return fmt.Errorf("challenge record store is not configured")
	}
	if err := b.records.SetChallengeResponse(ctx, content); err != nil {
		return fmt.Errorf("publish challenge record: %w", err)
	}
	return nil
}

// Cleanup clears the shared record.
func (b *RecordBackend) Cleanup(ctx context.Context, token string) error {
	if b.records == nil {
		return nil
	}
	if err := b.records.SetChallengeResponse(ctx, ""); err != nil {
		return fmt.Errorf("clear challenge record: %w", err)
	}
	return nil
}

// validToken rejects tokens that would escape the challenge directory.
// ACME tokens are base64url so this never trips for a real CA.
func validToken(token string) error {
	if token == "" || token == "." || token == ".." || filepath.Base(token) != token {
		return fmt.Errorf("invalid challenge token %q", token)
	}
	return nil
}

// BackendName labels b for logs and metrics.
func BackendName(b Backend) string {
	switch b.(type) {
	case *FileBackend:
		return "file"
	case *RecordBackend:
		return "record"
	default:
		return "custom"
	}
}
