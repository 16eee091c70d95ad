package cli

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bootdash/cloudops/common/endpoints"
	opserrors "github.com/bootdash/cloudops/common/errors"
	"github.com/bootdash/cloudops/common/stats"
	"github.com/bootdash/cloudops/ops/scheduler"
	"github.com/bootdash/cloudops/platform"
	"github.com/bootdash/cloudops/platform/fake"
	"github.com/bootdash/cloudops/tunnel"
)

func execute(args ...string) (string, error) {
	c := NewCLI()
	var out bytes.Buffer
	c.rootCmd.SetOut(&out)
	c.rootCmd.SetArgs(args)
	err := c.Exec()
	return out.String(), err
}

func TestDemo(t *testing.T) {
	out, err := execute("demo", "--config", "test.json", "--log_level", "error")
	require.NoError(t, err)
	for _, want := range []string{"deploy app1", "restart app1", "health app1", "stop app1", "SUCCEEDED", "CANCELLED"} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "FAILED")
}

func TestDemoMissingApp(t *testing.T) {
	out, err := execute("demo", "--config", "test.json", "--log_level", "error", "--app", "nope")
	require.Error(t, err)
	assert.Equal(t, opserrors.FatalFailureExitCode, opserrors.ExitCodeOf(err))
	assert.Contains(t, out, "FAILED")
}

func TestConfigErrors(t *testing.T) {
	_, err := execute("demo", "--config", `{"Scheduler": {"HistorySize": -1}}`)
	assert.Equal(t, opserrors.ConfigFailureExitCode, opserrors.ExitCodeOf(err))

	_, err = execute("demo", "--config", "missing.json")
	assert.Equal(t, opserrors.ConfigFailureExitCode, opserrors.ExitCodeOf(err))

	_, err = execute("demo", "--log_level", "loud")
	assert.Equal(t, opserrors.ConfigFailureExitCode, opserrors.ExitCodeOf(err))

	_, err = execute("serve", "--config", "test.json")
	assert.Equal(t, opserrors.ConfigFailureExitCode, opserrors.ExitCodeOf(err))
}

func TestStatus(t *testing.T) {
	sched := scheduler.New(scheduler.Config{}, nil, nil)
	defer sched.Close()
	client := fake.NewClient(0)
	client.AddApp(platform.App{Name: "app1"}, true)
	target := platform.NewTarget("t1", client, nil, nil, platform.Config{})
	require.NoError(t, sched.RunSync(context.Background(), target.Start("app1")))

	s := endpoints.NewTwitterServer("", stats.NilStatsReceiver())
	s.AddView("/admin/operations", func() interface{} {
		return map[string][]scheduler.Status{"active": sched.Snapshot(), "finished": sched.History()}
	})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	out, err := execute("status", "--addr", strings.TrimPrefix(srv.URL, "http://"))
	require.NoError(t, err)
	assert.Contains(t, out, "start app1")
	assert.Contains(t, out, "start(t1/app1)")
	assert.Contains(t, out, "SUCCEEDED")
}

func TestStatusUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = execute("status", "--addr", addr, "--tries", "1")
	assert.Equal(t, opserrors.TransientFailureExitCode, opserrors.ExitCodeOf(err))
}

func TestServeUntilCancelled(t *testing.T) {
	cl := NewCLI()
	cl.config = `{"Endpoints": {"Type": "admin", "Addr": "127.0.0.1:0"}, "Platform": {"Type": "fake", "Apps": ["app1"]}}`
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, (&serveCmd{refreshInterval: 5 * time.Millisecond}).serve(ctx, cl))
}

type pipeSession struct {
	done chan struct{}
	once sync.Once
}

func (s *pipeSession) Dial(string, string) (net.Conn, error) {
	a, b := net.Pipe()
	go func() {
		defer b.Close()
		buf := make([]byte, 64)
		n, _ := b.Read(buf)
		b.Write(buf[:n])
	}()
	return a, nil
}
func (s *pipeSession) Done() <-chan struct{} { return s.done }
func (s *pipeSession) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func TestTunnelHold(t *testing.T) {
	session := &pipeSession{done: make(chan struct{})}
	tunnels := tunnel.NewManager(
		tunnel.WithAcceptTimeout(10*time.Millisecond),
		tunnel.WithSessionFactory(func(tunnel.SessionParams, time.Duration, stats.StatsReceiver) (tunnel.Session, error) {
			return session, nil
		}))
	defer tunnels.DisposeAll()
	c := &tunnelCmd{params: tunnel.SessionParams{Host: "ssh.example"}, remotePort: 8000}

	ctx, cancel := context.WithCancel(context.Background())
	opened := make(chan int, 1)
	done := make(chan error, 1)
	go func() { done <- c.hold(ctx, tunnels, func(port int) { opened <- port }) }()

	port := <-opened
	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	conn.Write([]byte("ping"))
	buf := make([]byte, 4)
	_, err = conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))
	conn.Close()

	cancel()
	assert.NoError(t, <-done)
	_, ok := tunnels.Get("ssh.example")
	assert.False(t, ok)
}

func TestTunnelSessionLost(t *testing.T) {
	session := &pipeSession{done: make(chan struct{})}
	tunnels := tunnel.NewManager(
		tunnel.WithAcceptTimeout(10*time.Millisecond),
		tunnel.WithSessionFactory(func(tunnel.SessionParams, time.Duration, stats.StatsReceiver) (tunnel.Session, error) {
			return session, nil
		}))
	defer tunnels.DisposeAll()
	c := &tunnelCmd{params: tunnel.SessionParams{Host: "ssh.example"}, remotePort: 8000}

	done := make(chan error, 1)
	go func() { done <- c.hold(context.Background(), tunnels, func(int) { session.Close() }) }()
	err := <-done
	assert.True(t, opserrors.IsTransient(err), "got %v", err)
}
