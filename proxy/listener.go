// Package proxy exposes the user catalog operations the proxy core calls
// around each listener: loading and refreshing users from the backends,
// authenticating client handshakes, and persisting the catalog across
// restarts.
package proxy

import (
	"context"
	"net"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"

	"github.com/turtacn/guomen/backend"
	"github.com/turtacn/guomen/common/errors"
	"github.com/turtacn/guomen/common/log"
	"github.com/turtacn/guomen/config"
	"github.com/turtacn/guomen/observability/metrics"
	"github.com/turtacn/guomen/security/audit"
	"github.com/turtacn/guomen/security/auth"
)

// Listener owns one proxy port's authentication state: the active catalog
// snapshot, the loader that rebuilds it, and the persister that carries it
// across restarts.
//
// Readers acquire the snapshot with a single atomic load and keep using it
// for the whole handshake; the loader swaps the pointer under the listener
// mutex, so a reader never observes a partially built catalog and an
// in-flight authentication keeps its snapshot alive until it returns.
type Listener struct {
	id   uuid.UUID
	name string
	cfg  *config.Config

	backends      []backend.Querier
	loader        *auth.Loader
	authenticator *auth.Authenticator
	persister     *auth.Persister
	auditor       *audit.Logger

	// mu serializes snapshot swaps; it is never held during backend I/O.
	mu       sync.Mutex
	snapshot atomic.Pointer[auth.Catalog]

	refreshCancel context.CancelFunc
	wg            sync.WaitGroup
	log           log.Logger
}

// NewListener wires a listener over the configured backends. The auditor
// may be nil when audit logging is disabled.
func NewListener(cfg *config.Config, backends []backend.Querier, auditor *audit.Logger) (*Listener, error) {
	if len(backends) == 0 {
		return nil, errors.ErrNoBackends.New()
	}

	l := &Listener{
		id:        uuid.New(),
		name:      cfg.Proxy.Name,
		cfg:       cfg,
		backends:  backends,
		loader:    auth.NewLoader(cfg.Auth, backends),
		persister: auth.NewPersister(cfg.Auth.SnapshotPath),
		auditor:   auditor,
		log:       log.Component("listener").WithField("listener", cfg.Proxy.Name),
	}

	var resolver auth.Resolver
	if cfg.Auth.HostnameFallback {
		resolver = auth.DNSResolver{}
		if cfg.Auth.DNSCacheSize > 0 {
			cached, err := auth.NewCachingResolver(resolver, cfg.Auth.DNSCacheSize)
			if err != nil {
				return nil, err
			}
			resolver = cached
		}
		resolver = meteredResolver{inner: resolver}
	}
	l.authenticator = auth.NewAuthenticator(l.Snapshot, resolver, cfg.Auth.HostnameFallback)

	l.log.Infof("listener %s created", l.id)
	return l, nil
}

// Snapshot returns the catalog visible to new authentications, or nil
// before the first load.
func (l *Listener) Snapshot() *auth.Catalog {
	return l.snapshot.Load()
}

// LoadUsers fetches the grant data from the backends and swaps in the new
// catalog. It returns the number of loaded entries.
func (l *Listener) LoadUsers(ctx context.Context) (int, error) {
	return l.reload(ctx, "load")
}

// RefreshUsers re-runs the backend load. The previous catalog stays active
// until the new one is complete.
func (l *Listener) RefreshUsers(ctx context.Context) (int, error) {
	return l.reload(ctx, "refresh")
}

func (l *Listener) reload(ctx context.Context, op string) (int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "users."+op)
	span.SetTag("listener", l.name)
	defer span.Finish()

	start := time.Now()
	catalog, err := l.loader.Load(ctx)
	metrics.LoadDuration.Observe(time.Since(start).Seconds())

	if l.auditor != nil {
		count := 0
		if catalog != nil {
			count = catalog.Len()
		}
		l.auditor.Log(audit.NewRefreshEvent(l.name, count, err))
	}

	if err != nil {
		metrics.LoadsTotal.WithLabelValues("error").Inc()
		return 0, err
	}

	l.swap(catalog)
	metrics.LoadsTotal.WithLabelValues("ok").Inc()

	if err := l.persister.Save(catalog); err != nil {
		// Persistence failures never affect the in-memory state.
		metrics.SnapshotOps.WithLabelValues("save", "error").Inc()
		l.log.WithError(err).Warnf("cannot persist user snapshot")
	} else {
		metrics.SnapshotOps.WithLabelValues("save", "ok").Inc()
	}

	l.log.Infof("user catalog %sed: %d entries, %d databases", op, catalog.Len(), len(catalog.Databases()))
	return catalog.Len(), nil
}

// swap publishes a fully built catalog.
func (l *Listener) swap(catalog *auth.Catalog) {
	l.mu.Lock()
	l.snapshot.Store(catalog)
	l.mu.Unlock()

	metrics.UsersLoaded.Set(float64(catalog.Len()))
	metrics.DatabasesKnown.Set(float64(len(catalog.Databases())))
}

// RestoreUsers loads the persisted snapshot, if any, so the listener can
// authenticate before the first successful backend load. A missing file is
// not an error.
func (l *Listener) RestoreUsers() (int, error) {
	catalog, err := l.persister.Load()
	if err != nil {
		metrics.SnapshotOps.WithLabelValues("load", "error").Inc()
		return 0, err
	}
	if catalog == nil {
		return 0, nil
	}
	metrics.SnapshotOps.WithLabelValues("load", "ok").Inc()
	l.swap(catalog)
	l.log.Infof("restored %d user entries from %s", catalog.Len(), l.persister.Path())
	return catalog.Len(), nil
}

// SaveUsers persists the active catalog to an explicit path.
func (l *Listener) SaveUsers(path string) error {
	catalog := l.Snapshot()
	if catalog == nil {
		return errors.ErrPersistenceIO.New(path, "no user catalog loaded")
	}
	if err := l.persister.SaveTo(catalog, path); err != nil {
		metrics.SnapshotOps.WithLabelValues("save", "error").Inc()
		return err
	}
	metrics.SnapshotOps.WithLabelValues("save", "ok").Inc()
	return nil
}

// LoadUsersFrom replaces the active catalog with one read from an explicit
// snapshot path.
func (l *Listener) LoadUsersFrom(path string) (int, error) {
	catalog, err := l.persister.LoadFrom(path)
	if err != nil {
		metrics.SnapshotOps.WithLabelValues("load", "error").Inc()
		return 0, err
	}
	if catalog == nil {
		return 0, errors.ErrPersistenceIO.New(path, "snapshot file does not exist")
	}
	metrics.SnapshotOps.WithLabelValues("load", "ok").Inc()
	l.swap(catalog)
	return catalog.Len(), nil
}

// Authenticate verifies one client handshake against the active catalog.
func (l *Listener) Authenticate(req auth.Request) auth.Result {
	span := opentracing.StartSpan("client.authenticate")
	span.SetTag("listener", l.name)
	span.SetTag("user", req.User)
	defer span.Finish()

	start := time.Now()
	res := l.authenticator.Authenticate(req)
	metrics.AuthDuration.Observe(time.Since(start).Seconds())
	metrics.AuthAttempts.WithLabelValues(res.Kind.String()).Inc()
	span.SetTag("result", res.Kind.String())

	if l.auditor != nil {
		l.auditor.Log(audit.NewAuthenticationEvent(
			l.name, req.User, req.ClientIP.String(), req.Database,
			res.Kind.String(), res.UsedPassword, res.Kind == auth.AuthOK))
	}

	return res
}

// StartRefresh reloads the catalog on the configured interval and on
// SIGHUP until the context is cancelled or Close is called.
func (l *Listener) StartRefresh(ctx context.Context) {
	interval := l.cfg.Auth.RefreshInterval
	if interval <= 0 {
		return
	}

	ctx, l.refreshCancel = context.WithCancel(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGHUP)
	ticker := time.NewTicker(interval)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer ticker.Stop()
		defer signal.Stop(sigChan)

		for {
			select {
			case <-ctx.Done():
				return
			case <-sigChan:
				l.log.Infof("SIGHUP received, reloading users")
			case <-ticker.C:
			}

			if _, err := l.RefreshUsers(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				l.log.WithError(err).Warnf("user refresh failed, keeping previous catalog")
			}
		}
	}()
}

// Close stops the refresh loop. The backends stay open; they belong to the
// caller.
func (l *Listener) Close() {
	if l.refreshCancel != nil {
		l.refreshCancel()
	}
	l.wg.Wait()
}

// meteredResolver counts reverse-DNS outcomes.
type meteredResolver struct {
	inner auth.Resolver
}

func (r meteredResolver) ReverseLookup(ip net.IP) (string, error) {
	name, err := r.inner.ReverseLookup(ip)
	switch {
	case err != nil:
		metrics.DNSLookups.WithLabelValues("error").Inc()
	case name == "":
		metrics.DNSLookups.WithLabelValues("miss").Inc()
	default:
		metrics.DNSLookups.WithLabelValues("hit").Inc()
	}
	return name, err
}
