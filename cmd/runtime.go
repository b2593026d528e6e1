package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zjrosen/activesave/internal/autosave"
	"github.com/zjrosen/activesave/internal/config"
	"github.com/zjrosen/activesave/internal/flags"
	"github.com/zjrosen/activesave/internal/infrastructure/leveldb"
	"github.com/zjrosen/activesave/internal/infrastructure/sqlite"
	"github.com/zjrosen/activesave/internal/log"
	"github.com/zjrosen/activesave/internal/store"
	"github.com/zjrosen/activesave/internal/submit"
	"github.com/zjrosen/activesave/internal/tracing"
	"github.com/zjrosen/activesave/internal/validation"
)

// runtime is everything a command needs: the cache, a session over it and
// the resources to release afterwards.
type runtime struct {
	cfg     config.Config
	cache   *store.Store
	session *autosave.Session
	tracing *tracing.Provider
	// updatedAt is available when the backend records write times.
	updatedAt func(ctx context.Context, key string) (time.Time, bool, error)
	closers   []func() error
}

func openRuntime(c config.Config) (*runtime, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	rt := &runtime{cfg: c}
	backend, err := rt.openBackend(c.Cache)
	if err != nil {
		return nil, err
	}
	rt.cache = store.New(store.NewCached(backend, c.Cache.TTL))

	provider, err := tracing.NewProvider(c.Tracing)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("creating tracing provider: %w", err)
	}
	rt.tracing = provider

	client, err := submit.NewClient(c.BaseURL,
		submit.WithTimeout(c.Submit.Timeout),
		submit.WithStatusHeader(c.Submit.StatusHeader),
	)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	var validator validation.Validator = validation.None
	if c.Validation.Enabled {
		validator = validation.NewRules()
	}

	rt.session = autosave.New(rt.cache, client,
		autosave.WithDefaultScope(c.Scope),
		autosave.WithValidator(validator),
		autosave.WithFlags(flags.New(c.Flags)),
		autosave.WithTracer(provider.Tracer()),
		autosave.WithUnloadTimeout(c.Unload.Timeout),
	)
	log.Debug(log.CatConfig, "runtime ready", "backend", c.Cache.Backend, "path", c.Cache.Path, "tracing", provider.Enabled())
	return rt, nil
}

func (rt *runtime) openBackend(c config.CacheConfig) (store.Backend, error) {
	switch c.Backend {
	case config.BackendMemory:
		return store.NewMemory(), nil
	case config.BackendLevelDB:
		db, err := leveldb.Open(c.Path)
		if err != nil {
			return nil, fmt.Errorf("opening leveldb cache: %w", err)
		}
		rt.closers = append(rt.closers, db.Close)
		return db, nil
	case config.BackendSQLite, "":
		db, err := sqlite.NewDB(c.Path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite cache: %w", err)
		}
		rt.closers = append(rt.closers, db.Close)
		repo := db.Namespaces()
		rt.updatedAt = repo.UpdatedAt
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", c.Backend)
	}
}

// Close waits for in-flight submissions, flushes traces and closes the backend.
func (rt *runtime) Close() error {
	var errs []error
	if rt.session != nil {
		ctx, cancel := context.WithTimeout(context.Background(), rt.cfg.Submit.Timeout+time.Second)
		if err := rt.session.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("waiting for submissions: %w", err))
		}
		cancel()
		rt.session.Close()
	}
	if rt.tracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rt.tracing.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flushing traces: %w", err))
		}
		cancel()
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
