// Copyright (c) 2026 DLMS. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package workspace owns the per-browser-tab state of the gateway.

A workspace is what one running single-page client used to be: one credential
session, one navigation guard and one reader store, all sharing the same
storage scope. The [Registry] builds workspaces lazily from the workspace
cookie, restores their persisted state and evicts them from memory when idle.

Wiring (per workspace):

	Session ◀──tokens── apiclient.Client ──401──▶ Session.HandleUnauthorized
	   │                      │
	   ▼                      ▼
	 Guard              reader.Store
*/
package workspace

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/taibuivan/dlms/internal/apiclient"
	"github.com/taibuivan/dlms/internal/navigation"
	"github.com/taibuivan/dlms/internal/platform/config"
	"github.com/taibuivan/dlms/internal/platform/constants"
	"github.com/taibuivan/dlms/internal/platform/sec"
	"github.com/taibuivan/dlms/internal/reader"
	"github.com/taibuivan/dlms/internal/session"
)

// # Workspace

// Workspace bundles the components that share one storage scope.
type Workspace struct {
	ID      string
	Session *session.Session
	Guard   *navigation.Guard
	Reader  *reader.Store
}

type entry struct {
	workspace *Workspace
	lastSeen  time.Time
}

// # Registry

// Options configures a [Registry].
//
// Redis and Postgres are optional. Without Redis, tokens and identities live
// in memory; the reader backend follows ReaderBackend, falling back to memory
// when its store is not available.
type Options struct {
	Client        *apiclient.Client
	Table         *navigation.Table
	Redis         *redis.Client
	Postgres      *pgxpool.Pool
	ReaderBackend string
	StateTTL      time.Duration
	IdleTTL       time.Duration
	Inspector     *sec.TokenInspector
	Logger        *slog.Logger
	Now           func() time.Time
}

// Registry maps workspace ids to live workspaces.
//
// # Concurrency
//
// Registry is safe for concurrent use. Concurrent first requests for the
// same id build exactly one workspace.
type Registry struct {
	options Options
	logger  *slog.Logger
	now     func() time.Time

	mu         sync.Mutex
	workspaces map[string]*entry
	building   singleflight.Group
}

// NewRegistry creates an empty registry.
func NewRegistry(options Options) *Registry {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := options.Now
	if now == nil {
		now = time.Now
	}

	if options.Table == nil {
		options.Table = navigation.DefaultTable()
	}
	options.ReaderBackend = effectiveBackend(options, logger)

	return &Registry{
		options:    options,
		logger:     logger,
		now:        now,
		workspaces: make(map[string]*entry),
	}
}

// effectiveBackend downgrades a reader backend whose store is not connected.
func effectiveBackend(options Options, logger *slog.Logger) string {
	switch {
	case options.ReaderBackend == config.BackendRedis && options.Redis == nil:
	case options.ReaderBackend == config.BackendPostgres && options.Postgres == nil:
	case options.ReaderBackend == "":
	default:
		return options.ReaderBackend
	}

	logger.Warn("reader_backend_unavailable",
		slog.String("requested", options.ReaderBackend),
		slog.String("using", config.BackendMemory),
	)
	return config.BackendMemory
}

// NewID returns a fresh workspace id.
func (registry *Registry) NewID() string {
	return uuid.NewString()
}

/*
Get returns the workspace for id, building and restoring it on first use.

Restoration failures are logged and the workspace starts empty; a broken
snapshot must never lock a browser out of the gateway.
*/
func (registry *Registry) Get(context context.Context, id string) *Workspace {
	registry.mu.Lock()
	if existing, ok := registry.workspaces[id]; ok {
		existing.lastSeen = registry.now()
		registry.mu.Unlock()
		return existing.workspace
	}
	registry.mu.Unlock()

	built, _, _ := registry.building.Do(id, func() (any, error) {
		registry.mu.Lock()
		if existing, ok := registry.workspaces[id]; ok {
			registry.mu.Unlock()
			return existing.workspace, nil
		}
		registry.mu.Unlock()

		workspace := registry.build(context, id)

		registry.mu.Lock()
		registry.workspaces[id] = &entry{workspace: workspace, lastSeen: registry.now()}
		registry.mu.Unlock()
		return workspace, nil
	})

	return built.(*Workspace)
}

// build wires one workspace and restores its persisted state.
func (registry *Registry) build(context context.Context, id string) *Workspace {
	logger := registry.logger.With(slog.String("workspace_id", id))

	var (
		tokens   session.TokenStore
		identity session.IdentityCache
	)
	if registry.options.Redis != nil {
		tokens = session.NewRedisTokenStore(registry.options.Redis, id)
		identity = session.NewRedisIdentityCache(registry.options.Redis, id)
	} else {
		tokens = session.NewMemoryTokenStore()
		identity = session.NewMemoryIdentityCache()
	}

	sess := session.New(session.Options{
		Tokens:    tokens,
		Identity:  identity,
		Inspector: registry.options.Inspector,
		Logger:    logger,
	})

	// The client reads the session's token and reports 401s back to it.
	client := registry.options.Client.ForSession(sess, sess.HandleUnauthorized)
	sess.SetProvider(session.NewRemoteProvider(client))

	store := reader.NewStore(reader.Options{
		Backend: reader.NewRemoteBackend(client),
		States:  registry.stateStore(id),
		Logger:  logger,
		Now:     registry.now,
	})

	// Restoration runs detached from the triggering request's cancellation.
	restoreContext := contextWithoutCancel(context)
	if err := sess.Restore(restoreContext); err != nil {
		logger.WarnContext(context, "workspace_session_restore_failed", slog.Any("error", err))
	}
	if err := store.Restore(restoreContext); err != nil {
		logger.WarnContext(context, "workspace_reader_restore_failed", slog.Any("error", err))
	}

	logger.InfoContext(context, "workspace_created")

	return &Workspace{
		ID:      id,
		Session: sess,
		Guard:   navigation.NewGuard(registry.options.Table, sess, logger),
		Reader:  store,
	}
}

func (registry *Registry) stateStore(id string) reader.StateStore {
	ttl := registry.options.StateTTL

	switch registry.options.ReaderBackend {
	case config.BackendRedis:
		return reader.NewRedisStateStore(registry.options.Redis, id, ttl)
	case config.BackendPostgres:
		return reader.NewPostgresStateStore(registry.options.Postgres, id, ttl)
	default:
		return reader.NewMemoryStateStore()
	}
}

// Remove forgets a workspace from memory. Persisted state is untouched.
func (registry *Registry) Remove(id string) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	delete(registry.workspaces, id)
}

// Len returns the number of live workspaces.
func (registry *Registry) Len() int {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	return len(registry.workspaces)
}

// # Eviction

// Sweep evicts workspaces idle for longer than IdleTTL and returns how many
// were evicted. Reader stores with pending operations are kept.
func (registry *Registry) Sweep() int {
	if registry.options.IdleTTL <= 0 {
		return 0
	}

	cutoff := registry.now().Add(-registry.options.IdleTTL)

	registry.mu.Lock()
	defer registry.mu.Unlock()

	evicted := 0
	for id, item := range registry.workspaces {
		if item.lastSeen.After(cutoff) || item.workspace.Reader.HasPendingOperations() {
			continue
		}
		delete(registry.workspaces, id)
		evicted++
	}
	return evicted
}

// Run sweeps idle workspaces until context is cancelled.
func (registry *Registry) Run(context context.Context) {
	ticker := time.NewTicker(constants.WorkspaceSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if evicted := registry.Sweep(); evicted > 0 {
				registry.logger.Info("workspaces_evicted",
					slog.Int("count", evicted),
					slog.Int("remaining", registry.Len()),
				)
			}
		case <-context.Done():
			return
		}
	}
}

func contextWithoutCancel(parent context.Context) context.Context {
	return context.WithoutCancel(parent)
}
