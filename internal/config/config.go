package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/acme"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Domains is the space-separated list of names to certify. The first one
	// is the common name unless CertName is set.
	Domains      string `yaml:"domain"`
	Email        string `yaml:"email"`
	DirectoryURL string `yaml:"endpoint"`
	// DirectoryCARoots is an optional PEM bundle trusted for the ACME directory.
	DirectoryCARoots string `yaml:"ca_roots"`

	// PrivateKey is either a path (relative to RootDir) or raw PEM key material.
	PrivateKey     string `yaml:"private_key"`
	PrivateKeyInDB bool   `yaml:"private_key_in_db"`
	RootDir        string `yaml:"root_dir"`

	// ChallengeDir selects the filesystem challenge backend when non-empty.
	ChallengeDir  string `yaml:"challenge_dir_name"`
	OutputCertDir string `yaml:"output_cert_dir"`
	CertName      string `yaml:"cert_name"`
	CertKeyType   string `yaml:"cert_key_type"`

	DatabaseURL         string `yaml:"database_url"`
	LogLevel            string `yaml:"log_level"`
	ServiceName         string `yaml:"service_name"`
	ResponderListenAddr string `yaml:"responder_listen_addr"`
	MetricsListenAddr   string `yaml:"metrics_listen_addr"`
	// PushgatewayURL receives the issue command's metrics when set.
	PushgatewayURL string `yaml:"pushgateway_url"`

	PollInterval    time.Duration `yaml:"poll_interval"`
	PollMaxAttempts int           `yaml:"poll_max_attempts"`
	ChallengeDelay  time.Duration `yaml:"challenge_publish_delay"`
}

// Load builds a Config from defaults, the optional YAML file at path and
// finally the environment. Environment variables win over the file.
func Load(path string) (*Config, error) {
	cfg := &Config{
		DirectoryURL:        acme.LetsEncryptURL,
		RootDir:             ".",
		OutputCertDir:       "certificates",
		CertKeyType:         "RSA2048",
		LogLevel:            "info",
		ServiceName:         "certissuer",
		ResponderListenAddr: ":8080",
		MetricsListenAddr:   ":9090",
		PollInterval:        time.Second,
		PollMaxAttempts:     10,
		ChallengeDelay:      2 * time.Second,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.Domains = getEnv("CERT_DOMAINS", cfg.Domains)
	cfg.Email = getEnv("CERT_EMAIL", cfg.Email)
	cfg.DirectoryURL = getEnv("ACME_DIRECTORY_URL", cfg.DirectoryURL)
	cfg.DirectoryCARoots = getEnv("ACME_CA_ROOTS", cfg.DirectoryCARoots)
	cfg.PrivateKey = getEnv("CERT_PRIVATE_KEY", cfg.PrivateKey)
	cfg.RootDir = getEnv("CERT_ROOT_DIR", cfg.RootDir)
	cfg.ChallengeDir = getEnv("CERT_CHALLENGE_DIR", cfg.ChallengeDir)
	cfg.OutputCertDir = getEnv("CERT_OUTPUT_DIR", cfg.OutputCertDir)
	cfg.CertName = getEnv("CERT_NAME", cfg.CertName)
	cfg.CertKeyType = getEnv("CERT_KEY_TYPE", cfg.CertKeyType)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.ServiceName = getEnv("SERVICE_NAME", cfg.ServiceName)
	cfg.ResponderListenAddr = getEnv("RESPONDER_LISTEN_ADDR", cfg.ResponderListenAddr)
	cfg.MetricsListenAddr = getEnv("METRICS_LISTEN_ADDR", cfg.MetricsListenAddr)
	cfg.PushgatewayURL = getEnv("PUSHGATEWAY_URL", cfg.PushgatewayURL)

	var err error
	if cfg.PrivateKeyInDB, err = getEnvBool("CERT_PRIVATE_KEY_IN_DB", cfg.PrivateKeyInDB); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = getEnvDuration("POLL_INTERVAL", cfg.PollInterval); err != nil {
		return nil, err
	}
	if cfg.ChallengeDelay, err = getEnvDuration("CHALLENGE_PUBLISH_DELAY", cfg.ChallengeDelay); err != nil {
		return nil, err
	}
	if cfg.PollMaxAttempts, err = getEnvInt("POLL_MAX_ATTEMPTS", cfg.PollMaxAttempts); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DomainList splits Domains on whitespace.
func (c *Config) DomainList() []string {
	return strings.Fields(c.Domains)
}

// UsesDatabase reports whether the persisted-record store is needed by the
// issue command: either for the challenge backend or for the account key.
func (c *Config) UsesDatabase() bool {
	return c.ChallengeDir == "" || c.PrivateKeyInDB
}

// Path resolves p against RootDir unless it is absolute. Empty stays empty.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) || c.RootDir == "" {
		return p
	}
	return filepath.Join(c.RootDir, p)
}

// Validate checks that every field required by command is set and returns
// all problems in a single error.
func (c *Config) Validate(command string) error {
	var missing []string
	require := func(name, value string) {
		if value == "" {
			missing = append(missing, name)
		}
	}

	switch command {
	case "issue":
		require("CERT_DOMAINS", c.Domains)
		require("CERT_EMAIL", c.Email)
		require("ACME_DIRECTORY_URL", c.DirectoryURL)
		require("CERT_PRIVATE_KEY", c.PrivateKey)
		if c.UsesDatabase() {
			require("DATABASE_URL", c.DatabaseURL)
		}
	case "serve":
		require("DATABASE_URL", c.DatabaseURL)
		require("RESPONDER_LISTEN_ADDR", c.ResponderListenAddr)
	case "migrate":
		require("DATABASE_URL", c.DatabaseURL)
	case "keygen":
		if c.PrivateKeyInDB {
			require("DATABASE_URL", c.DatabaseURL)
		}
	default:
		return fmt.Errorf("unknown command %q", command)
	}

	var problems []string
	if len(missing) > 0 {
		problems = append(problems, "missing required config: "+strings.Join(missing, ", "))
	}
	if c.PollMaxAttempts < 1 {
		problems = append(problems, "POLL_MAX_ATTEMPTS must be at least 1")
	}
	if c.PollInterval < 0 || c.ChallengeDelay < 0 {
		problems = append(problems, "POLL_INTERVAL and CHALLENGE_PUBLISH_DELAY must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return b, nil
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
