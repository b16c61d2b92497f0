package keys

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/edvin/certissuer/internal/certerr"
	"github.com/edvin/certissuer/internal/model"
)

// Store returns the account key persisted in the settings record.
type Store interface {
	PrivateKey(ctx context.Context) (string, error)
}

// Provider resolves the account key for one issuance and caches it.
//
// Precedence: the persisted record when source.InStore, then the file at
// RootDir/Value when it is a regular file, then Value as raw PEM. A directory at
// that path is always an error.
type Provider struct {
	source model.KeySource
	store  Store
	logger zerolog.Logger

	key crypto.Signer
}

// NewProvider creates a Provider. store may be nil when source.InStore is false.
func NewProvider(source model.KeySource, store Store, logger zerolog.Logger) *Provider {
	return &Provider{
		source: source,
		store:  store,
		logger: logger.With().Str("component", "keys").Logger(),
	}
}

// Key returns the resolved account key.
func (p *Provider) Key(ctx context.Context) (crypto.Signer, error) {
	if p.key != nil {
		return p.key, nil
	}

	material, origin, err := p.resolve(ctx)
	if err != nil {
		return nil, err
	}

	key, err := ParsePEM([]byte(material))
	if err != nil {
		return nil, certerr.New(certerr.KindConfiguration, fmt.Errorf("account key from %s: %w", origin, err))
	}

	p.logger.Debug().Str("origin", origin).Msg("resolved account key")
	p.key = key
	return key, nil
}

func (p *Provider) resolve(ctx context.Context) (material, origin string, err error) {
	if p.source.InStore {
		if p.store == nil {
			return "", "", certerr.Newf(certerr.KindConfiguration, "private key is stored in the database but no store is configured")
		}
		material, err = p.store.PrivateKey(ctx)
		if err != nil {
			return "", "", certerr.New(certerr.KindConfiguration, fmt.Errorf("load private key record: %w", err))
		}
		if material == "" {
			return "", "", certerr.Newf(certerr.KindConfiguration, "empty private_key field in settings record")
		}
		origin = "database"
	}

	if p.source.Value == "" {
		return "", "", certerr.Newf(certerr.KindConfiguration, "private key is not set")
	}

	path := p.path()
	info, statErr := os.Stat(path)
	if statErr == nil && info.IsDir() {
		return "", "", certerr.Newf(certerr.KindPath, "can not open private key: %s is a directory", path)
	}

	if origin != "" {
		return material, origin, nil
	}

	if statErr == nil && info.Mode().IsRegular() {
		b, err := os.ReadFile(path)
		if err != nil {
			return "", "", certerr.New(certerr.KindPath, fmt.Errorf("read private key: %w", err))
		}
		return string(b), "file", nil
	}
	if statErr != nil && !errors.Is(statErr, os.ErrNotExist) {
		p.logger.Debug().Err(statErr).Msg("private key value is not a readable path, using it as key material")
	}

	return p.source.Value, "inline", nil
}

func (p *Provider) path() string {
	if filepath.IsAbs(p.source.Value) || p.source.RootDir == "" {
		return p.source.Value
	}
	return filepath.Join(p.source.RootDir, p.source.Value)
}
