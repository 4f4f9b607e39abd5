package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/PabloGalante/fiqh-assistant/internal/adapters/cache"
	"github.com/PabloGalante/fiqh-assistant/internal/adapters/llm"
	"github.com/PabloGalante/fiqh-assistant/internal/adapters/storage/file"
	firestorestore "github.com/PabloGalante/fiqh-assistant/internal/adapters/storage/firestore"
	memstore "github.com/PabloGalante/fiqh-assistant/internal/adapters/storage/memory"
	"github.com/PabloGalante/fiqh-assistant/internal/adapters/storage/mysql"
	"github.com/PabloGalante/fiqh-assistant/internal/adapters/storage/postgres"
	"github.com/PabloGalante/fiqh-assistant/internal/adapters/storage/sqlite"
	"github.com/PabloGalante/fiqh-assistant/internal/app/conversation"
	"github.com/PabloGalante/fiqh-assistant/internal/config"
	"github.com/PabloGalante/fiqh-assistant/internal/domain"
	"github.com/PabloGalante/fiqh-assistant/internal/observability"
)

// app holds the wired engine and everything that must be closed on exit.
type app struct {
	cfg   *config.Config
	svc   *conversation.Service
	synth domain.Synthesizer

	closers []io.Closer
}

// newApp loads the configuration, wires the adapters and reconciles the
// session collection.
func newApp(ctx context.Context, logOut io.Writer) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	observability.Configure(cfg.LogLevel, logOut)
	log := observability.Logger()

	a := &app{cfg: cfg}

	blobs, err := a.openBlobStore()
	if err != nil {
		a.close()
		return nil, err
	}
	remote, err := a.openRemote(ctx)
	if err != nil {
		a.close()
		return nil, err
	}
	gen, synth, err := a.openProviders(ctx)
	if err != nil {
		a.close()
		return nil, err
	}
	a.synth = llm.NewRateLimitedSynthesizer(synth, cfg.TTSRatePerSec)

	a.svc = conversation.NewService(gen, cache.New(blobs), remote,
		conversation.WithRemoteTimeout(cfg.RemoteTimeout))

	res, err := a.svc.Reconcile(ctx)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("reconcile sessions: %w", err)
	}
	log.Info("engine ready",
		"cache_backend", cfg.CacheBackend,
		"remote_backend", cfg.RemoteBackend,
		"mock_llm", cfg.UseMockLLM,
		"status", res.Status,
		"sessions", len(res.Sessions),
	)
	return a, nil
}

func (a *app) openBlobStore() (domain.BlobStore, error) {
	switch a.cfg.CacheBackend {
	case "sqlite":
		s, err := sqlite.Open(a.cfg.CachePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s)
		return s, nil
	case "memory":
		return memstore.NewBlobStore(), nil
	default:
		return file.Open(a.cfg.CachePath)
	}
}

// openRemote returns nil for the "none" backend, which runs local-only.
func (a *app) openRemote(ctx context.Context) (domain.RemoteStore, error) {
	cfg := a.cfg
	switch cfg.RemoteBackend {
	case "memory":
		return memstore.NewRemoteStore(), nil
	case "postgres":
		s, err := postgres.NewStore(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s)
		if ensureTable {
			if err := s.EnsureTable(ctx); err != nil {
				return nil, err
			}
		}
		return s, nil
	case "mysql":
		s, err := mysql.NewStore(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s)
		if ensureTable {
			if err := s.EnsureTable(ctx); err != nil {
				return nil, err
			}
		}
		return s, nil
	case "firestore":
		s, err := firestorestore.NewStore(ctx, cfg.GCPProjectID)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s)
		return s, nil
	default:
		return nil, nil
	}
}

func (a *app) openProviders(ctx context.Context) (domain.Generator, domain.Synthesizer, error) {
	cfg := a.cfg
	if cfg.UseMockLLM {
		observability.Logger().Warn("using mock generator and synthesizer")
		return llm.NewMockLLM(), llm.NewMockSynthesizer(), nil
	}

	client, err := llm.NewGeminiClient(ctx, llm.ClientOptions{
		APIKey:   cfg.APIKey,
		Vertex:   cfg.UseVertex,
		Project:  cfg.GCPProjectID,
		Location: cfg.GCPLocation,
	})
	if err != nil {
		return nil, nil, err
	}
	gen := llm.NewGeminiGenerator(client, cfg.ModelName, cfg.ThinkingModelName, cfg.HistoryLimit)
	synth := llm.NewGeminiSynthesizer(client, cfg.TTSModelName)
	return gen, synth, nil
}

// shutdown waits for queued remote writes, then closes the adapters.
func (a *app) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.RemoteTimeout+5*time.Second)
	defer cancel()

	var errs []error
	if err := a.svc.Flush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush remote writes: %w", err))
	}
	errs = append(errs, a.close())
	return errors.Join(errs...)
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// cliLogOutput keeps logs off stdout for commands that print results there.
func cliLogOutput() io.Writer {
	return os.Stderr
}
