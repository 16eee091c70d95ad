package platform

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	opserrors "github.com/bootdash/cloudops/common/errors"
	"github.com/bootdash/cloudops/common/stats"
	"github.com/bootdash/cloudops/ops"
	"github.com/bootdash/cloudops/ops/cancel"
	"github.com/bootdash/cloudops/ops/retry"
	"github.com/bootdash/cloudops/tunnel"
)

const (
	DefaultHealthCheckAttempts = 5
	DefaultHealthCheckInterval = time.Second
	DefaultAttachInterval      = 250 * time.Millisecond
	DefaultAttachTimeout       = 30 * time.Second
)

// Target configuration
// HealthCheckAttempts - tries before a health check gives up on transient errors
// HealthCheckInterval - pause between health check tries
// AttachInterval, AttachTimeout - pacing and bound for the debugger to answer through a new tunnel
// Probe - checks that a debugger answers on a local address; defaults to JDWPHandshake
type Config struct {
	HealthCheckAttempts int
	HealthCheckInterval time.Duration
	AttachInterval      time.Duration
	AttachTimeout       time.Duration
	Probe               func(addr string, timeout time.Duration) error
}

// Target is one platform target (org/space, cluster...) reached through a
// Client. It builds the operations for its apps and keeps the per-app
// bookkeeping those operations share: cancellation tokens, which apps are
// starting, and the app list from the last refresh.
type Target struct {
	name    string
	client  Client
	tunnels *tunnel.Manager
	stat    stats.StatsReceiver
	config  Config

	starting *ops.Tracker

	mu     sync.Mutex
	tokens map[string]*cancel.Tokens
	apps   map[string]App
}

// NewTarget returns a Target. tunnels and stat may be nil.
func NewTarget(name string, client Client, tunnels *tunnel.Manager, stat stats.StatsReceiver, config Config) *Target {
	if tunnels == nil {
		tunnels = tunnel.NewManager()
	}
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	if config.HealthCheckAttempts <= 0 {
		config.HealthCheckAttempts = DefaultHealthCheckAttempts
	}
	if config.HealthCheckInterval <= 0 {
		config.HealthCheckInterval = DefaultHealthCheckInterval
	}
	if config.AttachInterval <= 0 {
		config.AttachInterval = DefaultAttachInterval
	}
	if config.AttachTimeout <= 0 {
		config.AttachTimeout = DefaultAttachTimeout
	}
	if config.Probe == nil {
		config.Probe = JDWPHandshake
	}
	return &Target{
		name:     name,
		client:   client,
		tunnels:  tunnels,
		stat:     stat,
		config:   config,
		starting: ops.NewTracker(),
		tokens:   make(map[string]*cancel.Tokens),
		apps:     make(map[string]App),
	}
}

func (t *Target) Name() string { return t.name }

// Apps is the app list as of the last successful refresh, sorted by name.
func (t *Target) Apps() []App {
	t.mu.Lock()
	defer t.mu.Unlock()
	apps := make([]App, 0, len(t.apps))
	for _, a := range t.apps {
		apps = append(apps, a)
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].Name < apps[j].Name })
	return apps
}

func (t *Target) App(name string) (App, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.apps[name]
	return a, ok
}

// IsStarting is true while a deploy, start or restart of app is running.
func (t *Target) IsStarting(app string) bool {
	return t.starting.IsBusy(app)
}

// CancelOperations cancels every operation created for app so far.
func (t *Target) CancelOperations(app string) {
	t.tokensFor(app).CancelAll()
}

func (t *Target) tokensFor(app string) *cancel.Tokens {
	t.mu.Lock()
	defer t.mu.Unlock()
	ts, ok := t.tokens[app]
	if !ok {
		ts = cancel.NewTokens()
		t.tokens[app] = ts
	}
	return ts
}

// newOp creates an operation whose token is registered for app until the
// operation ends, including when it is cancelled before running. With
// supersede, every older operation on app is cancelled right away, so the
// new one doesn't queue behind work it replaces.
func (t *Target) newOp(name, app string, rule *ops.Rule, supersede bool, body ops.Body) *ops.Operation {
	tokens := t.tokensFor(app)
	tok := tokens.Create()
	if supersede {
		tokens.CancelAllBefore(tok)
	}
	return ops.New(name, rule, body,
		ops.WithToken(tok),
		ops.WithTranslator(Translate),
		ops.OnFinish(func() { tokens.Release(tok) }))
}

// call checks for cancellation, then runs one platform call with stats.
func (t *Target) call(m *ops.Monitor, name string, fn func(ctx context.Context) error) error {
	if err := m.Checkpoint(); err != nil {
		return err
	}
	stat := t.stat.Scope(name)
	stat.Counter(stats.PlatformCallCounter).Inc(1)
	defer stat.Latency(stats.PlatformCallLatency_ms).Time().Stop()
	if err := fn(m.Context()); err != nil {
		stat.Counter(stats.PlatformCallErrorCounter).Inc(1)
		return errors.Wrapf(err, "%s on %s", name, t.name)
	}
	return nil
}

func (t *Target) refreshApp(m *ops.Monitor, name string) error {
	var app App
	err := t.call(m, "get", func(ctx context.Context) (err error) {
		app, err = t.client.GetApp(ctx, name)
		return err
	})
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case err == nil:
		t.apps[name] = app
	case errors.Is(err, ErrNotFound):
		delete(t.apps, name)
	}
	return err
}

// Refresh reloads the app list. It excludes every other operation on the target.
func (t *Target) Refresh() *ops.Operation {
	return ops.New("refresh "+t.name, ops.TargetRule(t.name), func(ctx context.Context, m *ops.Monitor) error {
		var apps []App
		if err := t.call(m, "list", func(ctx context.Context) (err error) {
			apps, err = t.client.ListApps(ctx)
			return err
		}); err != nil {
			return err
		}
		byName := make(map[string]App, len(apps))
		for _, a := range apps {
			byName[a.Name] = a
		}
		t.mu.Lock()
		t.apps = byName
		t.mu.Unlock()
		m.Step("found %d apps", len(apps))
		return nil
	}, ops.WithTranslator(Translate))
}

// Deploy pushes args.Name, superseding any older operation on it.
func (t *Target) Deploy(args PushArgs) *ops.Operation {
	app := args.Name
	return t.newOp("deploy "+app, app, ops.StartRule(t.name, app), true, func(ctx context.Context, m *ops.Monitor) error {
		return t.starting.While(app, func() error {
			m.Step("pushing %s", app)
			if err := t.call(m, "push", func(ctx context.Context) error {
				return t.client.Push(ctx, args)
			}); err != nil {
				return err
			}
			return t.refreshApp(m, app)
		})
	})
}

// Start starts an existing app.
func (t *Target) Start(app string) *ops.Operation {
	return t.start("start", app, false)
}

// Restart is Start that supersedes every older operation on app.
func (t *Target) Restart(app string) *ops.Operation {
	return t.start("restart", app, true)
}

func (t *Target) start(verb, app string, supersede bool) *ops.Operation {
	return t.newOp(verb+" "+app, app, ops.StartRule(t.name, app), supersede, func(ctx context.Context, m *ops.Monitor) error {
		return t.starting.While(app, func() error {
			if err := t.refreshApp(m, app); err != nil {
				if errors.Is(err, ErrNotFound) {
					return errors.Wrapf(err, "%s no longer exists", app)
				}
				return err
			}
			m.Step("starting %s", app)
			if err := t.call(m, "start", func(ctx context.Context) error {
				return t.client.Start(ctx, app)
			}); err != nil {
				return err
			}
			return t.refreshApp(m, app)
		})
	})
}

// Stop supersedes everything already created for app.
func (t *Target) Stop(app string) *ops.Operation {
	return t.newOp("stop "+app, app, ops.StopRule(t.name, app), true, func(ctx context.Context, m *ops.Monitor) error {
		m.Step("stopping %s", app)
		if err := t.call(m, "stop", func(ctx context.Context) error {
			return t.client.Stop(ctx, app)
		}); err != nil {
			return err
		}
		return t.refreshApp(m, app)
	})
}

// Delete supersedes everything already created for app. It has no rule, so
// it runs alongside anything.
func (t *Target) Delete(app string) *ops.Operation {
	return t.newOp("delete "+app, app, nil, true, func(ctx context.Context, m *ops.Monitor) error {
		m.Step("deleting %s", app)
		if err := t.call(m, "delete", func(ctx context.Context) error {
			return t.client.Delete(ctx, app)
		}); err != nil {
			return err
		}
		t.tunnels.Dispose(app)
		t.mu.Lock()
		delete(t.apps, app)
		t.mu.Unlock()
		return nil
	})
}

// HealthCheck polls the app until it reports healthy. Transient failures are
// retried up to HealthCheckAttempts times; anything else fails immediately.
func (t *Target) HealthCheck(app string) *ops.Operation {
	return t.newOp("health "+app, app, ops.StartRule(t.name, app), false, func(ctx context.Context, m *ops.Monitor) error {
		attempt := 0
		return retry.When(t.config.HealthCheckAttempts, retry.Transient, func() error {
			attempt++
			if attempt > 1 {
				if err := t.pause(m, t.config.HealthCheckInterval); err != nil {
					return err
				}
			}
			m.Step("health check %d/%d", attempt, t.config.HealthCheckAttempts)
			return opserrors.Classify(Translate(t.call(m, "health", func(ctx context.Context) error {
				return t.client.HealthCheck(ctx, app)
			})))
		})
	})
}

func (t *Target) pause(m *ops.Monitor, d time.Duration) error {
	if d <= 0 {
		return m.Checkpoint()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-m.Context().Done():
	}
	return m.Checkpoint()
}

func (t *Target) logger(m *ops.Monitor) *log.Entry {
	return m.Operation().Info().Tags().Entry()
}
