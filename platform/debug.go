package platform

import (
	"bytes"
	"context"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/bootdash/cloudops/ops"
	"github.com/bootdash/cloudops/ops/retry"
	"github.com/bootdash/cloudops/tunnel"
)

var jdwpHandshake = []byte("JDWP-Handshake")

// JDWPHandshake succeeds if a JVM debug agent answers the JDWP handshake on addr.
func JDWPHandshake(addr string, timeout time.Duration) error {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(timeout))
	if _, err := conn.Write(jdwpHandshake); err != nil {
		return err
	}
	reply := make([]byte, len(jdwpHandshake))
	if _, err := io.ReadFull(conn, reply); err != nil {
		return err
	}
	if !bytes.Equal(reply, jdwpHandshake) {
		return errors.Errorf("unexpected handshake reply %q from %s", reply, addr)
	}
	return nil
}

// Launch is a debug session on one app, backed by a tunnel.
// It becomes Ready when its DebugAttach operation succeeds.
type Launch struct {
	App string

	mu         sync.Mutex
	tun        *tunnel.Tunnel
	terminated bool
	ready      chan struct{}
}

func newLaunch(app string) *Launch {
	return &Launch{App: app, ready: make(chan struct{})}
}

func (l *Launch) Ready() <-chan struct{} { return l.ready }

// Port is the local port a debugger should attach to, 0 until Ready.
func (l *Launch) Port() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.tun == nil {
		return 0
	}
	return l.tun.LocalPort()
}

func (l *Launch) Tunnel() *tunnel.Tunnel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tun
}

// Terminate disposes the tunnel. A launch terminated before it was ready
// disposes its tunnel as soon as one is attached.
func (l *Launch) Terminate() {
	l.mu.Lock()
	l.terminated = true
	tun := l.tun
	l.mu.Unlock()
	if tun != nil {
		tun.Dispose()
	}
}

func (l *Launch) attach(tun *tunnel.Tunnel) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.terminated {
		return false
	}
	l.tun = tun
	close(l.ready)
	return true
}

// DebugAttach opens a tunnel from localPort (0 for any) to remotePort on one
// instance of app and waits for a debugger to answer through it. The
// returned Launch owns the tunnel once the operation succeeds; on any
// failure the tunnel is disposed.
func (t *Target) DebugAttach(app string, instance, remotePort, localPort int) (*ops.Operation, *Launch) {
	launch := newLaunch(app)
	op := t.newOp("debug "+app, app, ops.StartRule(t.name, app), false, func(ctx context.Context, m *ops.Monitor) error {
		m.Step("fetching ssh parameters")
		var params tunnel.SessionParams
		if err := t.call(m, "ssh-params", func(ctx context.Context) (err error) {
			params, err = t.client.SSHParams(ctx, app, instance)
			return err
		}); err != nil {
			return err
		}
		t.logger(m).WithFields(log.Fields{
			"host":        params.Addr(),
			"user":        params.User,
			"fingerprint": params.Fingerprint,
			"remotePort":  remotePort,
		}).Info("SSH tunnel parameters")

		if err := m.Checkpoint(); err != nil {
			return err
		}
		m.Step("creating tunnel")
		tun, err := t.tunnels.Open(app, params, remotePort, localPort)
		if err != nil {
			return err
		}

		addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(tun.LocalPort()))
		m.Step("waiting for debugger on %s", addr)
		err = retry.WithTimeoutContext(ctx, t.config.AttachInterval, t.config.AttachTimeout, func() error {
			if err := m.Checkpoint(); err != nil {
				return err
			}
			return t.config.Probe(addr, t.config.AttachInterval)
		})
		if err == nil {
			err = m.Checkpoint()
		}
		if err != nil {
			tun.Dispose()
			return errors.Wrapf(err, "debugger on %s", app)
		}
		if !launch.attach(tun) {
			tun.Dispose()
			return errors.Errorf("debug launch for %s terminated while attaching", app)
		}
		t.logger(m).WithField("localPort", tun.LocalPort()).Info("Debugger reachable")
		return nil
	})
	return op, launch
}
