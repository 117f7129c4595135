// Command cubby assembles and runs the file hosting metadata service:
// entry stores, object store gateway, quota accounting and access codes,
// wired together from configuration.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cubbyhole/cubby/pkg/config"
	"github.com/cubbyhole/cubby/pkg/vfs"
)

// codePurgeInterval is how often expired access codes are physically
// removed. Logical expiry is always enforced at read time; the purge only
// reclaims storage.
const codePurgeInterval = 1 * time.Hour

func main() {
	configPath := flag.String("config", "", "Path to config file (default: "+config.GetDefaultConfigPath()+")")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := setupLogging(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "failed to configure logging: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		log.Error().Err(err).Msg("service failed")
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, err := config.CreateMetadataStores(ctx, cfg.Metadata)
	if err != nil {
		return fmt.Errorf("failed to create metadata stores: %w", err)
	}
	defer func() {
		if err := stores.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close metadata stores")
		}
	}()

	objects, err := config.CreateObjectStore(ctx, cfg.ObjectStore)
	if err != nil {
		return fmt.Errorf("failed to create object store: %w", err)
	}

	plans := config.NewPlanResolver(cfg.Plans)
	quota := vfs.NewQuotaAccountant(stores.Entries, plans)
	service := vfs.NewService(stores.Entries, stores.AccessCodes, objects, quota)
	issuer := vfs.NewAccessCodeIssuer(stores.Entries, stores.AccessCodes)
	// TODO: mount the HTTP API on top of service once the transport lands.
	_ = service

	if err := healthcheck(ctx, stores, objects); err != nil {
		return err
	}

	log.Info().
		Str("metadata", cfg.Metadata.Type).
		Str("object_store", cfg.ObjectStore.Type).
		Msg("cubby is running")

	// Background maintenance: reclaim expired access code rows.
	purgeDone := make(chan struct{})
	go func() {
		defer close(purgeDone)
		purgeLoop(ctx, issuer)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("shutting down")
	cancel()

	// Wait for background work, bounded so a wedged store cannot hang
	// shutdown forever.
	select {
	case <-purgeDone:
	case <-time.After(cfg.Server.ShutdownTimeout):
		log.Warn().Msg("shutdown timeout reached")
	}

	return nil
}

// healthcheck verifies every backing store is reachable before the service
// reports ready.
func healthcheck(ctx context.Context, stores *config.Stores, objects interface {
	Healthcheck(context.Context) error
}) error {
	if err := stores.Entries.Healthcheck(ctx); err != nil {
		return fmt.Errorf("entry store healthcheck failed: %w", err)
	}
	if err := stores.AccessCodes.Healthcheck(ctx); err != nil {
		return fmt.Errorf("access code store healthcheck failed: %w", err)
	}
	if err := objects.Healthcheck(ctx); err != nil {
		return fmt.Errorf("object store healthcheck failed: %w", err)
	}
	return nil
}

// purgeLoop periodically deletes expired access code rows.
func purgeLoop(ctx context.Context, issuer *vfs.AccessCodeIssuer) {
	ticker := time.NewTicker(codePurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := issuer.PurgeExpired(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("access code purge failed")
				continue
			}
			if purged > 0 {
				log.Info().Int("purged", purged).Msg("expired access codes removed")
			}
		}
	}
}

// setupLogging configures the global zerolog logger from configuration.
func setupLogging(cfg config.LoggingConfig) error {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zerolog.SetGlobalLevel(level)

	var out *os.File
	switch cfg.Output {
	case "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file %q: %w", cfg.Output, err)
		}
		out = f
	}

	if cfg.Format == "text" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	} else {
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
	}
	return nil
}
