package opsconfig

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bootdash/cloudops/platform"
)

func TestBundledConfigsParse(t *testing.T) {
	for _, name := range []string{"local.json", "test.json"} {
		text, err := Asset("config/" + name)
		require.NoError(t, err, name)
		_, err = Schema().Parse(text)
		assert.NoError(t, err, name)
	}
}

func TestDefaults(t *testing.T) {
	config, err := Schema().Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, "local", config[PlatformSection].(*FakePlatformConfig).Target)
	assert.Equal(t, "", config[EndpointsSection].(*EndpointsConfig).Addr)

	c, err := Create(config, nil)
	require.NoError(t, err)
	defer c.Close()
	assert.Nil(t, c.Server)
	assert.Equal(t, "local", c.Target.Name())
}

func TestLoad(t *testing.T) {
	c, err := Load("test.json", nil)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Scheduler.RunSync(context.Background(), c.Target.Start("app1")))
	require.NoError(t, c.Scheduler.RunSync(context.Background(), c.Target.HealthCheck("app1")))
	app, ok := c.Target.App("app1")
	require.True(t, ok)
	assert.Equal(t, platform.AppRunning, app.State)
	assert.Contains(t, string(c.Stats.Render(false)), "scheduler/")
}

func TestLoadLiteralJSON(t *testing.T) {
	c, err := Load(`{"Endpoints": {"Type": "admin", "Addr": "localhost:0"}}`, nil)
	require.NoError(t, err)
	defer c.Close()
	assert.NotNil(t, c.Server)
}

func TestValidation(t *testing.T) {
	for _, text := range []string{
		`{"Scheduler": {"HistorySize": -1}}`,
		`{"Tunnels": {"MaxConns": -3}}`,
		`{"Platform": {"Type": "fake", "Target": ""}}`,
		`{"Platform": {"Type": "fake", "Apps": ["a", "a"]}}`,
		`{"Platform": {"Type": "cf"}}`,
		`{"Endpoints": {"LatchMs": -1}}`,
	} {
		_, err := Schema().Parse([]byte(text))
		assert.Error(t, err, text)
	}
}
