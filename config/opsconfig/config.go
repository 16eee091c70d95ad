// Package opsconfig wires schedulers, tunnels and platform targets from
// jsonconfig text.
package opsconfig

import (
	"embed"

	"github.com/pkg/errors"

	"github.com/bootdash/cloudops/common/endpoints"
	"github.com/bootdash/cloudops/common/stats"
	"github.com/bootdash/cloudops/config/jsonconfig"
	"github.com/bootdash/cloudops/ops"
	"github.com/bootdash/cloudops/ops/scheduler"
	"github.com/bootdash/cloudops/platform"
	"github.com/bootdash/cloudops/platform/fake"
	"github.com/bootdash/cloudops/tunnel"
)

//go:embed config/*.json
var assets embed.FS

// Asset reads a bundled config file, e.g. "config/local.json".
func Asset(name string) ([]byte, error) {
	return assets.ReadFile(name)
}

const (
	SchedulerSection = "Scheduler"
	TunnelSection    = "Tunnels"
	PlatformSection  = "Platform"
	EndpointsSection = "Endpoints"
)

// Schema returns a fresh schema; Parse fills in the Implementations it holds.
func Schema() jsonconfig.Schema {
	return jsonconfig.Schema{
		SchedulerSection: {
			"":          &SchedulerConfig{HistorySize: scheduler.DefaultHistorySize},
			"scheduler": &SchedulerConfig{HistorySize: scheduler.DefaultHistorySize},
		},
		TunnelSection: {
			"":    &TunnelConfig{},
			"ssh": &TunnelConfig{},
		},
		PlatformSection: {
			"":     &FakePlatformConfig{Target: "local"},
			"fake": &FakePlatformConfig{Target: "local"},
		},
		EndpointsSection: {
			"":      &EndpointsConfig{Scope: "cloudops"},
			"admin": &EndpointsConfig{Scope: "cloudops"},
		},
	}
}

// Components is everything a process needs to run operations against one target.
type Components struct {
	Stats     stats.StatsReceiver
	Scheduler *scheduler.Scheduler
	Tunnels   *tunnel.Manager
	Target    *platform.Target
	Fake      *fake.Client
	Server    *endpoints.TwitterServer // nil when no admin address is configured

	stopStats func()
}

// Close stops the scheduler after its queue drains, then disposes tunnels.
func (c *Components) Close() {
	c.Scheduler.Close()
	c.Tunnels.DisposeAll()
	c.stopStats()
}

// Load parses configFlag (a bundled file name or literal JSON, see
// jsonconfig.GetConfigText) and builds the components. obs may be nil.
func Load(configFlag string, obs ops.Observer) (*Components, error) {
	text, err := jsonconfig.GetConfigText(configFlag, Asset)
	if err != nil {
		return nil, err
	}
	config, err := Schema().Parse(text)
	if err != nil {
		return nil, err
	}
	return Create(config, obs)
}

func Create(config jsonconfig.Configuration, obs ops.Observer) (*Components, error) {
	schedConfig, ok1 := config[SchedulerSection].(*SchedulerConfig)
	tunnelConfig, ok2 := config[TunnelSection].(*TunnelConfig)
	platformConfig, ok3 := config[PlatformSection].(*FakePlatformConfig)
	endpointsConfig, ok4 := config[EndpointsSection].(*EndpointsConfig)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, errors.Errorf("incomplete configuration: %v", config)
	}

	c := &Components{}
	c.Stats, c.stopStats = endpointsConfig.CreateStats()
	c.Scheduler = schedConfig.Create(obs, c.Stats.Scope("scheduler"))
	c.Tunnels = tunnelConfig.Create(c.Stats.Scope("tunnel"))
	c.Target, c.Fake = platformConfig.Create(c.Tunnels, c.Stats.Scope("platform"))
	c.Server = endpointsConfig.Create(c.Stats, c.Scheduler)
	return c, nil
}
