package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/edvin/certissuer/internal/model"
)

// DB defines the database operations used by the record store.
// *pgxpool.Pool satisfies this interface.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Records reads and writes the singleton challenge and settings rows. Both
// tables use first-or-create semantics: the lowest id row is the record.
//
// The challenge row holds one response at a time, so concurrent issuances
// sharing a database must be serialized by the caller.
type Records struct {
	db DB
}

// New creates a Records store.
func New(db DB) *Records {
	return &Records{db: db}
}

// Challenge returns the challenge record, creating it if the table is empty.
func (s *Records) Challenge(ctx context.Context) (*model.ChallengeRecord, error) {
	var c model.ChallengeRecord
	err := s.db.QueryRow(ctx,
		`SELECT id, response, created_at, updated_at FROM challenges ORDER BY id LIMIT 1`,
	).Scan(&c.ID, &c.Response, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		err = s.db.QueryRow(ctx,
			`INSERT INTO challenges (response) VALUES ('') RETURNING id, response, created_at, updated_at`,
		).Scan(&c.ID, &c.Response, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("create challenge record: %w", err)
		}
		return &c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get challenge record: %w", err)
	}
	return &c, nil
}

// ChallengeResponse returns the currently published key authorization.
func (s *Records) ChallengeResponse(ctx context.Context) (string, error) {
	c, err := s.Challenge(ctx)
	if err != nil {
		return "", err
	}
	return c.Response, nil
}

// SetChallengeResponse overwrites the published key authorization.
func (s *Records) SetChallengeResponse(ctx context.Context, response string) error {
	c, err := s.Challenge(ctx)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		`UPDATE challenges SET response = $1, updated_at = now() WHERE id = $2`,
		response, c.ID,
	)
	if err != nil {
		return fmt.Errorf("set challenge response: %w", err)
	}
	return nil
}

// Setting returns the settings record, creating it if the table is empty.
func (s *Records) Setting(ctx context.Context) (*model.SettingRecord, error) {
	var st model.SettingRecord
	err := s.db.QueryRow(ctx,
		`SELECT id, private_key, created_at, updated_at FROM settings ORDER BY id LIMIT 1`,
	).Scan(&st.ID, &st.PrivateKey, &st.CreatedAt, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		err = s.db.QueryRow(ctx,
			`INSERT INTO settings DEFAULT VALUES RETURNING id, private_key, created_at, updated_at`,
		).Scan(&st.ID, &st.PrivateKey, &st.CreatedAt, &st.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("create settings record: %w", err)
		}
		return &st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get settings record: %w", err)
	}
	return &st, nil
}

// PrivateKey returns the stored PEM account key, or "" if none is stored.
func (s *Records) PrivateKey(ctx context.Context) (string, error) {
	st, err := s.Setting(ctx)
	if err != nil {
		return "", err
	}
	if st.PrivateKey == nil {
		return "", nil
	}
	return *st.PrivateKey, nil
}

// SetPrivateKey stores the PEM account key in the settings record.
func (s *Records) SetPrivateKey(ctx context.Context, keyPEM string) error {
	st, err := s.Setting(ctx)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		`UPDATE settings SET private_key = $1, updated_at = now() WHERE id = $2`,
		keyPEM, st.ID,
	)
	if err != nil {
		return fmt.Errorf("set private key: %w", err)
	}
	return nil
}
