package sink

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/edvin/certissuer/internal/certerr"
)

// Artifact names, written in this order.
const (
	KeyFile       = "key.pem"
	FullchainFile = "fullchain.pem"
)

// EphemeralMarker is the environment variable present on platforms whose
// local filesystem does not outlive the process.
const EphemeralMarker = "DYNO"

// Sink receives the issued key and chain.
type Sink interface {
	Announce() error
	WriteArtifact(name string, content []byte) error
}

// Deliver announces the delivery and writes key.pem then fullchain.pem,
// byte for byte. Failures are output errors.
func Deliver(s Sink, key, fullchain []byte) error {
	if err := s.Announce(); err != nil {
		return asOutputError(err)
	}
	if err := s.WriteArtifact(KeyFile, key); err != nil {
		return asOutputError(err)
	}
	if err := s.WriteArtifact(FullchainFile, fullchain); err != nil {
		return asOutputError(err)
	}
	return nil
}

// Detector reports whether the process runs in an ephemeral environment.
type Detector func() bool

// EphemeralFromEnv detects the ephemeral platform marker.
func EphemeralFromEnv() bool {
	_, ok := os.LookupEnv(EphemeralMarker)
	return ok
}

// Select returns the console sink when detect reports an ephemeral
// environment and the filesystem sink for dir otherwise.
func Select(detect Detector, dir string, out io.Writer, label string, logger zerolog.Logger) Sink {
	if detect != nil && detect() {
		return NewConsoleSink(out, label, logger)
	}
	return NewFileSink(dir, logger)
}

// FileSink writes artifacts into an existing output directory.
type FileSink struct {
	dir    string
	logger zerolog.Logger
}

// NewFileSink creates a FileSink for dir.
func NewFileSink(dir string, logger zerolog.Logger) *FileSink {
	return &FileSink{dir: dir, logger: logger.With().Str("component", "sink").Logger()}
}

// Announce fails when the output directory does not exist, before any
// artifact is written. The directory is never created.
func (s *FileSink) Announce() error {
	info, err := os.Stat(s.dir)
	if err != nil || !info.IsDir() {
		s.logger.Error().Str("dir", s.dir).Msg("output directory does not exist")
		return certerr.Newf(certerr.KindOutput, "output directory %q does not exist", s.dir)
	}
	s.logger.Info().Str("dir", s.dir).Msg("saving certificates and key")
	return nil
}

func (s *FileSink) WriteArtifact(name string, content []byte) error {
	mode := os.FileMode(0644)
	if name == KeyFile {
		mode = 0600
	}
	if err := os.WriteFile(filepath.Join(s.dir, name), content, mode); err != nil {
		return certerr.New(certerr.KindOutput, fmt.Errorf("write %s: %w", name, err))
	}
	s.logger.Info().Str("file", name).Msg("artifact created")
	return nil
}

// ConsoleSink prints artifacts with section headers for manual copy-out.
type ConsoleSink struct {
	out    io.Writer
	label  string
	logger zerolog.Logger
}

// NewConsoleSink creates a ConsoleSink writing to out.
func NewConsoleSink(out io.Writer, label string, logger zerolog.Logger) *ConsoleSink {
	return &ConsoleSink{out: out, label: label, logger: logger.With().Str("component", "sink").Logger()}
}

func (s *ConsoleSink) Announce() error {
	s.logger.Info().Str("cn", s.label).Msg("ephemeral environment, copy the certificate and key below to persistent storage")
	return nil
}

func (s *ConsoleSink) WriteArtifact(name string, content []byte) error {
	if _, err := fmt.Fprintf(s.out, "====== %s ======\n", name); err != nil {
		return certerr.New(certerr.KindOutput, err)
	}
	if _, err := s.out.Write(content); err != nil {
		return certerr.New(certerr.KindOutput, err)
	}
	if len(content) == 0 || content[len(content)-1] != '\n' {
		if _, err := io.WriteString(s.out, "\n"); err != nil {
			return certerr.New(certerr.KindOutput, err)
		}
	}
	return nil
}

func asOutputError(err error) error {
	if certerr.KindOf(err) != "" {
		return err
	}
	return certerr.New(certerr.KindOutput, err)
}
