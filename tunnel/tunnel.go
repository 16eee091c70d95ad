// Package tunnel forwards a local TCP port to a port on the far side of an
// SSH session. A Tunnel owns its session, its listener and one background
// accept loop, and is torn down exactly once by Dispose.
package tunnel

import (
	"context"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/netutil"
	"golang.org/x/time/rate"

	"github.com/bootdash/cloudops/common/stats"
)

const (
	DefaultKeepAliveInterval = 5 * time.Second
	DefaultAcceptTimeout     = time.Second
	DefaultMaxConns          = 32

	// Pacing for the accept loop after unexpected errors.
	acceptErrorsPerSec = 10
	acceptErrorBurst   = 5
)

type options struct {
	keepAlive     time.Duration
	acceptTimeout time.Duration
	maxConns      int
	factory       SessionFactory
	stat          stats.StatsReceiver
	wrapListener  func(net.Listener) net.Listener
}

type Option func(*options)

// WithKeepAlive sets the keepalive probe interval; <= 0 disables probes.
func WithKeepAlive(d time.Duration) Option { return func(o *options) { o.keepAlive = d } }

// WithAcceptTimeout bounds each Accept so the loop notices disposal promptly.
func WithAcceptTimeout(d time.Duration) Option { return func(o *options) { o.acceptTimeout = d } }

// WithMaxConns caps concurrently forwarded connections; <= 0 means unlimited.
func WithMaxConns(n int) Option { return func(o *options) { o.maxConns = n } }

func WithSessionFactory(f SessionFactory) Option { return func(o *options) { o.factory = f } }

func WithStats(stat stats.StatsReceiver) Option { return func(o *options) { o.stat = stat } }

// WithListenerWrapper wraps the local listener after it is bound. Used by tests to inject faults.
func WithListenerWrapper(wrap func(net.Listener) net.Listener) Option {
	return func(o *options) { o.wrapListener = wrap }
}

type deadliner interface {
	SetDeadline(time.Time) error
}

type Tunnel struct {
	localPort  int
	remotePort int
	remoteAddr string

	session  Session
	listener net.Listener
	deadline deadliner

	acceptTimeout time.Duration
	limiter       *rate.Limiter
	stat          stats.StatsReceiver

	disposed atomic.Bool
	ctx      context.Context
	stop     context.CancelFunc
	done     chan struct{}

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// Open establishes the session, binds 127.0.0.1:localPort (0 picks a free
// port) and starts forwarding accepted connections to localhost:remotePort
// on the remote side.
func Open(params SessionParams, remotePort, localPort int, opts ...Option) (*Tunnel, error) {
	o := options{
		keepAlive:     DefaultKeepAliveInterval,
		acceptTimeout: DefaultAcceptTimeout,
		maxConns:      DefaultMaxConns,
		factory:       DialSSH,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.stat == nil {
		o.stat = stats.NilStatsReceiver()
	}
	if remotePort < 1 || remotePort > 65535 {
		return nil, errors.Errorf("remote port %d out of range", remotePort)
	}
	if localPort < 0 || localPort > 65535 {
		return nil, errors.Errorf("local port %d out of range", localPort)
	}

	stopwatch := o.stat.Latency(stats.TunnelOpenLatency_ms).Time()
	session, err := o.factory(params, o.keepAlive, o.stat)
	if err != nil {
		o.stat.Counter(stats.TunnelOpenFailureCounter).Inc(1)
		return nil, errors.Wrapf(err, "opening session to %s", params.Addr())
	}
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(localPort)))
	if err != nil {
		session.Close()
		o.stat.Counter(stats.TunnelOpenFailureCounter).Inc(1)
		return nil, errors.Wrapf(err, "binding local port %d", localPort)
	}
	tcp := ln.(*net.TCPListener)

	var listener net.Listener = ln
	if o.maxConns > 0 {
		listener = netutil.LimitListener(listener, o.maxConns)
	}
	if o.wrapListener != nil {
		listener = o.wrapListener(listener)
	}

	ctx, stop := context.WithCancel(context.Background())
	t := &Tunnel{
		localPort:     tcp.Addr().(*net.TCPAddr).Port,
		remotePort:    remotePort,
		remoteAddr:    net.JoinHostPort("localhost", strconv.Itoa(remotePort)),
		session:       session,
		listener:      listener,
		deadline:      tcp,
		acceptTimeout: o.acceptTimeout,
		limiter:       rate.NewLimiter(acceptErrorsPerSec, acceptErrorBurst),
		stat:          o.stat,
		ctx:           ctx,
		stop:          stop,
		done:          make(chan struct{}),
		conns:         make(map[net.Conn]struct{}),
	}
	go t.acceptLoop()
	go t.watchSession()

	stopwatch.Stop()
	o.stat.Counter(stats.TunnelOpenedCounter).Inc(1)
	t.logger().Info("Tunnel open")
	return t, nil
}

func (t *Tunnel) LocalPort() int  { return t.localPort }
func (t *Tunnel) RemotePort() int { return t.remotePort }
func (t *Tunnel) IsDisposed() bool { return t.disposed.Load() }

// Done is closed when the accept loop has exited.
func (t *Tunnel) Done() <-chan struct{} { return t.done }

// Dispose releases the listener, live connections and the session. Safe to
// call any number of times from any goroutine; teardown errors are dropped.
func (t *Tunnel) Dispose() {
	if !t.disposed.CompareAndSwap(false, true) {
		return
	}
	t.stop()
	closeQuietly("listener", t.listener)

	t.mu.Lock()
	conns := t.conns
	t.conns = nil
	t.mu.Unlock()
	for c := range conns {
		closeQuietly("connection", c)
	}

	closeQuietly("session", t.session)
	t.stat.Counter(stats.TunnelDisposedCounter).Inc(1)
	t.stat.Gauge(stats.TunnelActiveConnGauge).Update(0)
	t.logger().Info("Tunnel disposed")
}

func (t *Tunnel) logger() *log.Entry {
	return log.WithFields(log.Fields{
		"localPort":  t.localPort,
		"remotePort": t.remotePort,
	})
}

func (t *Tunnel) acceptLoop() {
	defer close(t.done)
	for !t.disposed.Load() {
		if t.acceptTimeout > 0 {
			t.deadline.SetDeadline(time.Now().Add(t.acceptTimeout))
		}
		conn, err := t.listener.Accept()
		if err != nil {
			if t.disposed.Load() {
				return
			}
			if isTimeout(err) {
				continue
			}
			t.stat.Counter(stats.TunnelAcceptErrorCounter).Inc(1)
			t.logger().WithField("err", err).Warn("Tunnel accept failed, retrying")
			if t.limiter.Wait(t.ctx) != nil {
				return
			}
			continue
		}
		t.stat.Counter(stats.TunnelAcceptedCounter).Inc(1)
		go t.forward(conn)
	}
}

// watchSession disposes the tunnel once its session is lost.
func (t *Tunnel) watchSession() {
	select {
	case <-t.session.Done():
		if !t.disposed.Load() {
			t.logger().Warn("Tunnel session lost")
			t.Dispose()
		}
	case <-t.ctx.Done():
	}
}

func (t *Tunnel) track(c net.Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conns == nil {
		return false
	}
	t.conns[c] = struct{}{}
	t.stat.Gauge(stats.TunnelActiveConnGauge).Update(int64(len(t.conns)))
	return true
}

func (t *Tunnel) untrack(c net.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conns == nil {
		return
	}
	delete(t.conns, c)
	t.stat.Gauge(stats.TunnelActiveConnGauge).Update(int64(len(t.conns)))
}

// forward pipes one local connection to the remote port. A failure here
// only affects this connection.
func (t *Tunnel) forward(local net.Conn) {
	defer local.Close()
	if !t.track(local) {
		return
	}
	defer t.untrack(local)

	remote, err := t.session.Dial("tcp", t.remoteAddr)
	if err != nil {
		if !t.disposed.Load() {
			t.stat.Counter(stats.TunnelForwardErrorCounter).Inc(1)
			t.logger().WithField("err", err).Warn("Tunnel forward dial failed")
		}
		return
	}
	if !t.track(remote) {
		remote.Close()
		return
	}
	defer t.untrack(remote)
	defer remote.Close()

	errc := make(chan error, 2)
	cp := func(dst, src net.Conn) {
		_, err := io.Copy(dst, src)
		errc <- err
	}
	go cp(remote, local)
	go cp(local, remote)

	err = <-errc
	local.Close()
	remote.Close()
	<-errc
	if err != nil && !t.disposed.Load() && !errors.Is(err, net.ErrClosed) {
		t.logger().WithField("err", err).Debug("Tunnel connection ended with error")
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func closeQuietly(what string, c io.Closer) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		log.WithFields(log.Fields{
			"what": what,
			"err":  err,
		}).Debug("Error during tunnel teardown, ignoring")
	}
}
