package opsconfig

import (
	"time"

	"github.com/pkg/errors"

	"github.com/bootdash/cloudops/common/endpoints"
	"github.com/bootdash/cloudops/common/stats"
	"github.com/bootdash/cloudops/ops"
	"github.com/bootdash/cloudops/ops/scheduler"
	"github.com/bootdash/cloudops/platform"
	"github.com/bootdash/cloudops/platform/fake"
	"github.com/bootdash/cloudops/tunnel"
)

func millis(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }

// Parameters to configure the operation Scheduler
// HistorySize - how many finished operations Status and History remember
// VerifyInvariants - panic if two conflicting operations are ever found
//             running together. Meant for tests and demos.
// LogOperations - log every start and finish through the standard logger
type SchedulerConfig struct {
	Type             string
	HistorySize      int
	VerifyInvariants bool
	LogOperations    bool
}

func (c *SchedulerConfig) Validate() error {
	if c.HistorySize < 0 {
		return errors.Errorf("HistorySize must be >= 0, got %d", c.HistorySize)
	}
	return nil
}

func (c *SchedulerConfig) Create(obs ops.Observer, stat stats.StatsReceiver) *scheduler.Scheduler {
	if c.LogOperations {
		if obs == nil {
			obs = ops.LogObserver()
		} else {
			obs = ops.Observers{ops.LogObserver(), obs}
		}
	}
	return scheduler.New(scheduler.Config{
		HistorySize:      c.HistorySize,
		VerifyInvariants: c.VerifyInvariants,
	}, obs, stat)
}

// Parameters for SSH tunnels; zero values take the tunnel package defaults.
type TunnelConfig struct {
	Type            string
	KeepAliveMs     int
	AcceptTimeoutMs int
	MaxConns        int
}

func (c *TunnelConfig) Validate() error {
	if c.KeepAliveMs < 0 || c.AcceptTimeoutMs < 0 || c.MaxConns < 0 {
		return errors.New("tunnel settings must not be negative")
	}
	return nil
}

func (c *TunnelConfig) Create(stat stats.StatsReceiver) *tunnel.Manager {
	opts := []tunnel.Option{tunnel.WithStats(stat)}
	if c.KeepAliveMs > 0 {
		opts = append(opts, tunnel.WithKeepAlive(millis(c.KeepAliveMs)))
	}
	if c.AcceptTimeoutMs > 0 {
		opts = append(opts, tunnel.WithAcceptTimeout(millis(c.AcceptTimeoutMs)))
	}
	if c.MaxConns > 0 {
		opts = append(opts, tunnel.WithMaxConns(c.MaxConns))
	}
	return tunnel.NewManager(opts...)
}

// Parameters for an in-memory platform
// Target - name of the deployment target
// LatencyMs - simulated latency of every platform call
// Apps - apps present at startup, all stopped and healthy
// SSHHost, SSHPort, SSHFingerprint - what SSHParams hands out
// HealthCheckAttempts, HealthCheckIntervalMs, AttachTimeoutMs - see platform.Config
type FakePlatformConfig struct {
	Type                  string
	Target                string
	LatencyMs             int
	Apps                  []string
	SSHHost               string
	SSHPort               int
	SSHFingerprint        string
	HealthCheckAttempts   int
	HealthCheckIntervalMs int
	AttachTimeoutMs       int
}

func (c *FakePlatformConfig) Validate() error {
	if c.Target == "" {
		return errors.New("Target is required")
	}
	if c.LatencyMs < 0 {
		return errors.Errorf("LatencyMs must be >= 0, got %d", c.LatencyMs)
	}
	seen := make(map[string]bool)
	for _, app := range c.Apps {
		if app == "" || seen[app] {
			return errors.Errorf("bad or duplicate app name %q", app)
		}
		seen[app] = true
	}
	return nil
}

func (c *FakePlatformConfig) Create(tunnels *tunnel.Manager, stat stats.StatsReceiver) (*platform.Target, *fake.Client) {
	client := fake.NewClient(millis(c.LatencyMs))
	for _, name := range c.Apps {
		client.AddApp(platform.App{Name: name, State: platform.AppStopped, Instances: 1}, true)
	}
	client.SetSSHParams(tunnel.SessionParams{
		Host:        c.SSHHost,
		Port:        c.SSHPort,
		Fingerprint: c.SSHFingerprint,
	})
	target := platform.NewTarget(c.Target, client, tunnels, stat, platform.Config{
		HealthCheckAttempts: c.HealthCheckAttempts,
		HealthCheckInterval: millis(c.HealthCheckIntervalMs),
		AttachTimeout:       millis(c.AttachTimeoutMs),
	})
	return target, client
}

// Parameters for stats and the admin http server
// Scope - prefix for every stat name
// LatchMs - how often /admin/metrics.json is refreshed, 0 renders live values
// Addr - where the admin server listens, empty disables it
type EndpointsConfig struct {
	Type    string
	Scope   string
	LatchMs int
	Addr    string
}

func (c *EndpointsConfig) Validate() error {
	if c.LatchMs < 0 {
		return errors.Errorf("LatchMs must be >= 0, got %d", c.LatchMs)
	}
	return nil
}

func (c *EndpointsConfig) CreateStats() (stats.StatsReceiver, func()) {
	return endpoints.MakeStatsReceiver(endpoints.StatScope(c.Scope), millis(c.LatchMs))
}

// Create returns the admin server, or nil when Addr is empty.
// sched, if not nil, is served at /admin/operations.
func (c *EndpointsConfig) Create(stat stats.StatsReceiver, sched *scheduler.Scheduler) *endpoints.TwitterServer {
	if c.Addr == "" {
		return nil
	}
	s := endpoints.NewTwitterServer(c.Addr, stat)
	if sched != nil {
		s.AddView("/admin/operations", func() interface{} {
			return map[string][]scheduler.Status{
				"active":   sched.Snapshot(),
				"finished": sched.History(),
			}
		})
	}
	return s
}
