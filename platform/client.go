// Package platform turns calls against a remote application platform into
// scheduled operations. The platform itself is reached through Client, which
// this package consumes but does not implement; platform/fake provides an
// in-memory one.
package platform

//go:generate mockgen -source=client.go -package=platform -destination=client_mock.go

import (
	"context"

	"github.com/pkg/errors"

	opserrors "github.com/bootdash/cloudops/common/errors"
	"github.com/bootdash/cloudops/tunnel"
)

type AppState string

const (
	AppStopped  AppState = "STOPPED"
	AppStarting AppState = "STARTING"
	AppRunning  AppState = "RUNNING"
	AppCrashed  AppState = "CRASHED"
)

// App is the platform's view of one application.
type App struct {
	Name        string   `json:"name"`
	State       AppState `json:"state"`
	Instances   int      `json:"instances"`
	Memory      int      `json:"memoryMB"`
	HealthCheck string   `json:"healthCheck"`
}

// Deployment arguments
// Path - artifact to upload
// Env - environment, replaces the app's current env
// NoStart - stage without starting
type PushArgs struct {
	Name      string            `json:"name"`
	Path      string            `json:"path"`
	Instances int               `json:"instances"`
	Memory    int               `json:"memoryMB"`
	Env       map[string]string `json:"env,omitempty"`
	NoStart   bool              `json:"noStart"`
}

// Client is the remote platform. Implementations should return (possibly
// wrapped) sentinel errors below so Translate can classify them.
type Client interface {
	ListApps(ctx context.Context) ([]App, error)
	GetApp(ctx context.Context, name string) (App, error)
	Push(ctx context.Context, args PushArgs) error
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
	Delete(ctx context.Context, name string) error
	// HealthCheck returns nil once the app reports healthy.
	HealthCheck(ctx context.Context, name string) error
	// SSHParams returns what's needed to open an SSH session to one app instance.
	SSHParams(ctx context.Context, name string, instance int) (tunnel.SessionParams, error)
}

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUnavailable  = errors.New("platform unavailable")
	ErrUnhealthy    = errors.New("app unhealthy")
)

// Translate classifies platform errors. Missing apps and bad credentials
// won't fix themselves; an unavailable platform or an app that isn't healthy
// yet might. Anything else is left for the default classification.
func Translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnauthorized):
		return opserrors.AsFatal(err)
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrUnhealthy):
		return opserrors.AsTransient(err)
	}
	return err
}
