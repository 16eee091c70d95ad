package tunnel

import (
	"bufio"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha1"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/bootdash/cloudops/common/stats"
)

// echoServer echoes each line back to the sender.
func echoServer(t *testing.T) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				io.Copy(c, c)
			}()
		}
	}()
	return ln.Addr().String()
}

// fakeSession dials target for every remote address.
type fakeSession struct {
	target    string
	failDials atomic.Int32
	dials     atomic.Int32
	closes    atomic.Int32
	done      chan struct{}
	once      sync.Once
}

func newFakeSession(target string) *fakeSession {
	return &fakeSession{target: target, done: make(chan struct{})}
}

func (s *fakeSession) Dial(network, addr string) (net.Conn, error) {
	s.dials.Add(1)
	if s.failDials.Add(-1) >= 0 {
		return nil, errors.New("channel open failed")
	}
	return net.Dial(network, s.target)
}

func (s *fakeSession) Close() error {
	s.closes.Add(1)
	s.drop()
	return nil
}

func (s *fakeSession) Done() <-chan struct{} { return s.done }
func (s *fakeSession) drop()                 { s.once.Do(func() { close(s.done) }) }

func factoryFor(s Session) SessionFactory {
	return func(SessionParams, time.Duration, stats.StatsReceiver) (Session, error) {
		return s, nil
	}
}

func openFake(t *testing.T, s Session, opts ...Option) *Tunnel {
	opts = append([]Option{WithSessionFactory(factoryFor(s)), WithAcceptTimeout(10 * time.Millisecond)}, opts...)
	tun, err := Open(SessionParams{Host: "app.example", User: "cf:1"}, 8000, 0, opts...)
	require.NoError(t, err)
	t.Cleanup(tun.Dispose)
	return tun
}

func roundTrip(t *testing.T, port int, msg string) (string, error) {
	c, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), time.Second)
	if err != nil {
		return "", err
	}
	defer c.Close()
	c.SetDeadline(time.Now().Add(2 * time.Second))
	if _, err := fmt.Fprintf(c, "%s\n", msg); err != nil {
		return "", err
	}
	line, err := bufio.NewReader(c).ReadString('\n')
	return strings.TrimSpace(line), err
}

func TestForwardsBytes(t *testing.T) {
	tun := openFake(t, newFakeSession(echoServer(t)))
	assert.NotZero(t, tun.LocalPort())
	assert.Equal(t, 8000, tun.RemotePort())

	for i := 0; i < 3; i++ {
		got, err := roundTrip(t, tun.LocalPort(), fmt.Sprintf("ping %d", i))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("ping %d", i), got)
	}
}

func TestAcceptTimeoutsAreQuiet(t *testing.T) {
	stat := stats.DefaultStatsReceiver()
	tun := openFake(t, newFakeSession(echoServer(t)), WithStats(stat))
	time.Sleep(100 * time.Millisecond)
	assert.False(t, tun.IsDisposed())
	stats.VerifyStats(t, stat, stats.Expect{
		stats.TunnelOpenedCounter:      1,
		stats.TunnelAcceptErrorCounter: nil,
	})
}

type faultyListener struct {
	net.Listener
	failures atomic.Int32
}

func (l *faultyListener) Accept() (net.Conn, error) {
	if l.failures.Add(-1) >= 0 {
		return nil, errors.New("too many open files")
	}
	return l.Listener.Accept()
}

func TestSurvivesAcceptErrors(t *testing.T) {
	stat := stats.DefaultStatsReceiver()
	tun := openFake(t, newFakeSession(echoServer(t)), WithStats(stat),
		WithListenerWrapper(func(l net.Listener) net.Listener {
			f := &faultyListener{Listener: l}
			f.failures.Store(3)
			return f
		}))

	got, err := roundTrip(t, tun.LocalPort(), "still here")
	require.NoError(t, err)
	assert.Equal(t, "still here", got)
	assert.False(t, tun.IsDisposed())
	stats.VerifyStats(t, stat, stats.Expect{
		stats.TunnelAcceptErrorCounter: 3,
	})
}

func TestFailedForwardOnlyDropsThatConnection(t *testing.T) {
	stat := stats.DefaultStatsReceiver()
	sess := newFakeSession(echoServer(t))
	sess.failDials.Store(1)
	tun := openFake(t, sess, WithStats(stat))

	_, err := roundTrip(t, tun.LocalPort(), "lost")
	assert.Error(t, err, "first connection is closed")

	got, err := roundTrip(t, tun.LocalPort(), "second")
	require.NoError(t, err)
	assert.Equal(t, "second", got)
	stats.VerifyStats(t, stat, stats.Expect{
		stats.TunnelForwardErrorCounter: 1,
		stats.TunnelAcceptedCounter:     2,
	})
}

func TestDisposeIsIdempotentAndConcurrent(t *testing.T) {
	stat := stats.DefaultStatsReceiver()
	sess := newFakeSession(echoServer(t))
	tun := openFake(t, sess, WithStats(stat))
	port := tun.LocalPort()

	// Hold a forwarded connection open across disposal.
	held, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	defer held.Close()
	assert.Eventually(t, func() bool { return sess.dials.Load() == 1 }, time.Second, time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tun.Dispose()
		}()
	}
	wg.Wait()

	assert.True(t, tun.IsDisposed())
	assert.Equal(t, port, tun.LocalPort(), "port stays readable after disposal")
	assert.Equal(t, int32(1), sess.closes.Load())
	select {
	case <-tun.Done():
	case <-time.After(time.Second):
		t.Fatal("accept loop did not exit")
	}

	held.SetReadDeadline(time.Now().Add(time.Second))
	_, err = held.Read(make([]byte, 1))
	assert.Error(t, err, "live connections are closed")

	_, err = roundTrip(t, port, "after")
	assert.Error(t, err)
	stats.VerifyStats(t, stat, stats.Expect{
		stats.TunnelDisposedCounter: 1,
		stats.TunnelActiveConnGauge: 0,
	})
}

func TestSessionLossDisposes(t *testing.T) {
	sess := newFakeSession(echoServer(t))
	tun := openFake(t, sess)
	sess.drop()
	assert.Eventually(t, tun.IsDisposed, time.Second, time.Millisecond)
	<-tun.Done()
}

func TestOpenFailures(t *testing.T) {
	stat := stats.DefaultStatsReceiver()
	failing := func(SessionParams, time.Duration, stats.StatsReceiver) (Session, error) {
		return nil, errors.New("auth failed")
	}
	_, err := Open(SessionParams{Host: "h"}, 8000, 0, WithSessionFactory(failing), WithStats(stat))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "auth failed")
	stats.VerifyStats(t, stat, stats.Expect{
		stats.TunnelOpenFailureCounter: 1,
		stats.TunnelOpenedCounter:      nil,
	})

	_, err = Open(SessionParams{}, 0, 0, WithSessionFactory(failing))
	assert.Error(t, err)
	_, err = Open(SessionParams{}, 8000, 70000, WithSessionFactory(failing))
	assert.Error(t, err)

	// The requested port is taken.
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()
	sess := newFakeSession("")
	_, err = Open(SessionParams{}, 8000, busy.Addr().(*net.TCPAddr).Port, WithSessionFactory(factoryFor(sess)))
	assert.Error(t, err)
	assert.Equal(t, int32(1), sess.closes.Load(), "session released when the bind fails")
}

func TestDialSSHRequiresFingerprint(t *testing.T) {
	_, err := DialSSH(SessionParams{Host: "127.0.0.1", User: "u"}, 0, stats.NilStatsReceiver())
	assert.Error(t, err)
}

func TestSessionParamsAddr(t *testing.T) {
	assert.Equal(t, "h:22", SessionParams{Host: "h"}.Addr())
	assert.Equal(t, "h:2222", SessionParams{Host: "h", Port: 2222}.Addr())
}

func TestMatchFingerprint(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	key, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)

	sum := sha1.Sum(key.Marshal())
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	sha1Upper := strings.Join(parts, ":")

	for _, fp := range []string{
		ssh.FingerprintSHA256(key),
		ssh.FingerprintLegacyMD5(key),
		"MD5:" + ssh.FingerprintLegacyMD5(key),
		strings.ToUpper(ssh.FingerprintLegacyMD5(key)),
		sha1Upper,
		" " + sha1Upper + " ",
	} {
		assert.True(t, MatchFingerprint(key, fp), fp)
	}

	other, _, _ := ed25519.GenerateKey(rand.Reader)
	otherKey, _ := ssh.NewPublicKey(other)
	for _, fp := range []string{
		ssh.FingerprintSHA256(otherKey),
		ssh.FingerprintLegacyMD5(otherKey),
		"",
		"not a fingerprint",
	} {
		assert.False(t, MatchFingerprint(key, fp), fp)
	}

	cb := FingerprintCallback(ssh.FingerprintSHA256(otherKey))
	assert.Error(t, cb("app.example:22", nil, key))
	assert.NoError(t, FingerprintCallback(ssh.FingerprintSHA256(key))("app.example:22", nil, key))
}
