package main

import (
	"context"
	"crypto"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/certissuer/internal/acmeclient"
	"github.com/edvin/certissuer/internal/challenge"
	"github.com/edvin/certissuer/internal/config"
	"github.com/edvin/certissuer/internal/db"
	"github.com/edvin/certissuer/internal/issuance"
	"github.com/edvin/certissuer/internal/keys"
	"github.com/edvin/certissuer/internal/logging"
	"github.com/edvin/certissuer/internal/metrics"
	"github.com/edvin/certissuer/internal/model"
	"github.com/edvin/certissuer/internal/poll"
	"github.com/edvin/certissuer/internal/responder"
	"github.com/edvin/certissuer/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "issue":
		err = runIssue(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	case "migrate":
		err = runMigrate(os.Args[2:])
	case "keygen":
		err = runKeygen(os.Args[2:])
	case "-h", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage:
  certissuer issue   [-config certissuer.yml]
  certissuer serve   [-config certissuer.yml]
  certissuer migrate [-config certissuer.yml]
  certissuer keygen  [-config certissuer.yml] [-type EC256] [-out key.pem | -db]

Commands:
  issue     Obtain a certificate for CERT_DOMAINS and write key.pem and fullchain.pem
  serve     Answer HTTP-01 challenges from the database and expose /metrics
  migrate   Create the challenge and settings tables
  keygen    Generate an ACME account key

Environment variables override values from the config file.`)
}

// loadConfig parses the shared -config flag plus any extra flags registered
// by setup, then loads and validates the config for command.
func loadConfig(command string, args []string, setup func(fs *flag.FlagSet)) (*config.Config, error) {
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	path := fs.String("config", "", "Path to YAML config file")
	if setup != nil {
		setup(fs)
	}
	fs.Parse(args)

	cfg, err := config.Load(*path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runIssue(args []string) error {
	cfg, err := loadConfig("issue", args, nil)
	if err != nil {
		return err
	}
	if err := cfg.Validate("issue"); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger := logging.NewLogger(cfg)

	ctx, cancel := signalContext()
	defer cancel()

	// A nil *store.Records must not leak into the interfaces below.
	var keyStore keys.Store
	var recordStore challenge.RecordStore
	if cfg.UsesDatabase() {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		records := store.New(pool)
		keyStore, recordStore = records, records
	}

	req, err := model.NewIssuanceRequest(model.IssuanceParams{
		Domains:      cfg.DomainList(),
		CertName:     cfg.CertName,
		Email:        cfg.Email,
		DirectoryURL: cfg.DirectoryURL,
		Key: model.KeySource{
			Value:   cfg.PrivateKey,
			InStore: cfg.PrivateKeyInDB,
			RootDir: cfg.RootDir,
		},
		OutputDir: cfg.Path(cfg.OutputCertDir),
	})
	if err != nil {
		return err
	}

	httpClient, err := cfg.DirectoryHTTPClient()
	if err != nil {
		return err
	}

	backend := challenge.SelectBackend(cfg.Path(cfg.ChallengeDir), recordStore)
	publisher := challenge.NewResponder(backend, logger, challenge.WithDelay(cfg.ChallengeDelay))

	reg := prometheus.NewRegistry()
	issuer := issuance.NewIssuer(issuance.Deps{
		KeyStore:      keyStore,
		Publisher:     publisher,
		PublisherName: challenge.BackendName(backend),
		NewACME: func(key crypto.Signer, directoryURL string) acmeclient.ACME {
			return acmeclient.NewACME(key, directoryURL, httpClient)
		},
		Poll: poll.Options{
			Interval:    cfg.PollInterval,
			MaxAttempts: cfg.PollMaxAttempts,
		},
		CertKeyType: cfg.CertKeyType,
		Metrics:     metrics.NewIssuance(reg),
	}, logger)

	logger.Info().Str("backend", challenge.BackendName(backend)).Msg("starting certificate issuance")
	_, err = issuer.Issue(ctx, req)

	if cfg.PushgatewayURL != "" {
		pushCtx, pushCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer pushCancel()
		if perr := metrics.Push(pushCtx, cfg.PushgatewayURL, cfg.ServiceName, reg); perr != nil {
			logger.Warn().Err(perr).Msg("failed to push issuance metrics")
		}
	}
	return err
}

func runServe(args []string) error {
	cfg, err := loadConfig("serve", args, nil)
	if err != nil {
		return err
	}
	if err := cfg.Validate("serve"); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger := logging.NewLogger(cfg)

	ctx, cancel := signalContext()
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := metrics.RegisterPgxPoolMetrics(reg, pool); err != nil {
		return fmt.Errorf("register pool metrics: %w", err)
	}

	challengeSrv := responder.NewServer(store.New(pool), reg, logger).HTTPServer(cfg.ResponderListenAddr)
	servers := []*http.Server{challengeSrv}
	if cfg.MetricsListenAddr != "" {
		servers = append(servers, metrics.NewServer(cfg.MetricsListenAddr, reg, ping(pool)))
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			logger.Info().Str("addr", srv.Addr).Msg("starting HTTP server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down servers")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		for _, srv := range servers {
			srv.Shutdown(shutdownCtx)
		}
		return nil
	})

	return g.Wait()
}

func ping(pool *pgxpool.Pool) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return pool.Ping(ctx)
	}
}

func runMigrate(args []string) error {
	cfg, err := loadConfig("migrate", args, nil)
	if err != nil {
		return err
	}
	if err := cfg.Validate("migrate"); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger := logging.NewLogger(cfg)

	logger.Info().Msg("running database migrations")
	if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
		return err
	}
	logger.Info().Msg("migrations complete")
	return nil
}

func runKeygen(args []string) error {
	var keyType, out string
	var toDB bool
	cfg, err := loadConfig("keygen", args, func(fs *flag.FlagSet) {
		fs.StringVar(&keyType, "type", "EC256", "Key type: EC256, EC384, RSA2048, RSA4096")
		fs.StringVar(&out, "out", "", "Write the key to this file (relative to CERT_ROOT_DIR); stdout if empty")
		fs.BoolVar(&toDB, "db", false, "Store the key in the settings record instead of a file")
	})
	if err != nil {
		return err
	}
	if toDB {
		cfg.PrivateKeyInDB = true
	}
	if err := cfg.Validate("keygen"); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger := logging.NewLogger(cfg)

	key, err := keys.Generate(keyType)
	if err != nil {
		return err
	}
	keyPEM, err := keys.EncodePEM(key)
	if err != nil {
		return err
	}

	switch {
	case toDB:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := store.New(pool).SetPrivateKey(ctx, string(keyPEM)); err != nil {
			return err
		}
		logger.Info().Str("type", keyType).Msg("stored account key in settings record")
	case out != "":
		path := cfg.Path(out)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
		if err != nil {
			return fmt.Errorf("create key file: %w", err)
		}
		defer f.Close()
		if _, err := f.Write(keyPEM); err != nil {
			return fmt.Errorf("write key file: %w", err)
		}
		logger.Info().Str("type", keyType).Str("path", path).Msg("wrote account key")
	default:
		os.Stdout.Write(keyPEM)
	}
	return nil
}
