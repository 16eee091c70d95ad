// Package fake is an in-memory platform.Client for tests and demos.
package fake

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/bootdash/cloudops/platform"
	"github.com/bootdash/cloudops/tunnel"
)

// Client simulates a platform. Every call sleeps for the configured latency,
// then waits on any gate set for it, then consumes an injected failure if
// one is queued, and only then acts on the in-memory apps.
type Client struct {
	latency time.Duration

	mu       sync.Mutex
	apps     map[string]*app
	failures map[string][]error
	gates    map[string]chan struct{}
	ssh      tunnel.SessionParams
	calls    []string
}

type app struct {
	platform.App
	healthy bool
}

func NewClient(latency time.Duration) *Client {
	return &Client{
		latency:  latency,
		apps:     make(map[string]*app),
		failures: make(map[string][]error),
		gates:    make(map[string]chan struct{}),
	}
}

// AddApp registers an app; healthy controls what HealthCheck reports once it runs.
func (c *Client) AddApp(a platform.App, healthy bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apps[a.Name] = &app{App: a, healthy: healthy}
}

func (c *Client) SetHealthy(name string, healthy bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a, ok := c.apps[name]; ok {
		a.healthy = healthy
	}
}

// FailNext makes the next len(errs) calls named call fail with errs, in order.
// Call names are the method names in lower case: "push", "start", "ssh-params"...
func (c *Client) FailNext(call string, errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[call] = append(c.failures[call], errs...)
}

// Block holds every call named call until the returned func is called.
func (c *Client) Block(call string) (release func()) {
	gate := make(chan struct{})
	c.mu.Lock()
	c.gates[call] = gate
	c.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			if c.gates[call] == gate {
				delete(c.gates, call)
			}
			c.mu.Unlock()
			close(gate)
		})
	}
}

// SetSSHParams sets what SSHParams returns; User is filled in per instance.
func (c *Client) SetSSHParams(p tunnel.SessionParams) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ssh = p
}

// Calls lists calls made so far as "name app", oldest first.
func (c *Client) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *Client) enter(ctx context.Context, call, name string) error {
	c.mu.Lock()
	c.calls = append(c.calls, fmt.Sprintf("%s %s", call, name))
	gate := c.gates[call]
	c.mu.Unlock()

	if c.latency > 0 {
		timer := time.NewTimer(c.latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if queued := c.failures[call]; len(queued) > 0 {
		c.failures[call] = queued[1:]
		return queued[0]
	}
	return nil
}

func (c *Client) find(name string) (*app, error) {
	a, ok := c.apps[name]
	if !ok {
		return nil, errors.Wrapf(platform.ErrNotFound, "app %s", name)
	}
	return a, nil
}

func (c *Client) ListApps(ctx context.Context) ([]platform.App, error) {
	if err := c.enter(ctx, "list", ""); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	apps := make([]platform.App, 0, len(c.apps))
	for _, a := range c.apps {
		apps = append(apps, a.App)
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].Name < apps[j].Name })
	return apps, nil
}

func (c *Client) GetApp(ctx context.Context, name string) (platform.App, error) {
	if err := c.enter(ctx, "get", name); err != nil {
		return platform.App{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	a, err := c.find(name)
	if err != nil {
		return platform.App{}, err
	}
	return a.App, nil
}

func (c *Client) Push(ctx context.Context, args platform.PushArgs) error {
	if err := c.enter(ctx, "push", args.Name); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.apps[args.Name]
	if !ok {
		a = &app{App: platform.App{Name: args.Name, HealthCheck: "port"}, healthy: true}
		c.apps[args.Name] = a
	}
	a.Instances = args.Instances
	if a.Instances == 0 {
		a.Instances = 1
	}
	a.Memory = args.Memory
	a.State = platform.AppRunning
	if args.NoStart {
		a.State = platform.AppStopped
	}
	return nil
}

func (c *Client) Start(ctx context.Context, name string) error {
	return c.setState(ctx, "start", name, platform.AppRunning)
}

func (c *Client) Stop(ctx context.Context, name string) error {
	return c.setState(ctx, "stop", name, platform.AppStopped)
}

func (c *Client) setState(ctx context.Context, call, name string, state platform.AppState) error {
	if err := c.enter(ctx, call, name); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	a, err := c.find(name)
	if err != nil {
		return err
	}
	a.State = state
	return nil
}

func (c *Client) Delete(ctx context.Context, name string) error {
	if err := c.enter(ctx, "delete", name); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.find(name); err != nil {
		return err
	}
	delete(c.apps, name)
	return nil
}

func (c *Client) HealthCheck(ctx context.Context, name string) error {
	if err := c.enter(ctx, "health", name); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	a, err := c.find(name)
	if err != nil {
		return err
	}
	if a.State != platform.AppRunning || !a.healthy {
		return errors.Wrapf(platform.ErrUnhealthy, "app %s is %s", name, a.State)
	}
	return nil
}

func (c *Client) SSHParams(ctx context.Context, name string, instance int) (tunnel.SessionParams, error) {
	if err := c.enter(ctx, "ssh-params", name); err != nil {
		return tunnel.SessionParams{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.find(name); err != nil {
		return tunnel.SessionParams{}, err
	}
	p := c.ssh
	p.User = fmt.Sprintf("cf:%s/%d", name, instance)
	return p, nil
}
