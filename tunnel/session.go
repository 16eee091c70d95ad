package tunnel

import (
	"crypto/sha1"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/net/proxy"

	"github.com/bootdash/cloudops/common/stats"
)

const (
	DefaultSSHPort     = 22
	DefaultDialTimeout = 10 * time.Second

	keepAliveRequest = "keepalive@openssh.com"
)

// Parameters for one SSH session
// Host, Port - ssh endpoint; Port 0 means DefaultSSHPort
// User - login user, usually an app/instance identifier
// Code - one-time code, sent as the password and as every keyboard-interactive answer
// Fingerprint - expected host key, as "SHA256:<base64>" or colon hex MD5/SHA1
// ProxyAddr - optional SOCKS5 proxy (host:port) the session is dialed through
type SessionParams struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	User        string `json:"user"`
	Code        string `json:"-"`
	Fingerprint string `json:"fingerprint"`
	ProxyAddr   string `json:"proxyAddr,omitempty"`
}

func (p SessionParams) Addr() string {
	port := p.Port
	if port == 0 {
		port = DefaultSSHPort
	}
	return net.JoinHostPort(p.Host, strconv.Itoa(port))
}

// Session is an established transport that can dial addresses on the remote side.
// Done is closed once the session is lost or closed.
type Session interface {
	Dial(network, addr string) (net.Conn, error)
	Close() error
	Done() <-chan struct{}
}

// SessionFactory establishes a Session. keepAlive <= 0 disables keepalive probes.
type SessionFactory func(params SessionParams, keepAlive time.Duration, stat stats.StatsReceiver) (Session, error)

// DialSSH is the SessionFactory used by default.
func DialSSH(params SessionParams, keepAlive time.Duration, stat stats.StatsReceiver) (Session, error) {
	if params.Fingerprint == "" {
		return nil, errors.Errorf("no host key fingerprint for %s", params.Addr())
	}
	config := &ssh.ClientConfig{
		User: params.User,
		Auth: []ssh.AuthMethod{
			ssh.Password(params.Code),
			ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = params.Code
				}
				return answers, nil
			}),
		},
		HostKeyCallback: FingerprintCallback(params.Fingerprint),
		Timeout:         DefaultDialTimeout,
	}

	conn, err := dialTransport(params)
	if err != nil {
		return nil, err
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, params.Addr(), config)
	if err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "ssh handshake with %s", params.Addr())
	}

	s := &sshSession{
		client: ssh.NewClient(c, chans, reqs),
		addr:   params.Addr(),
		stat:   stat,
		done:   make(chan struct{}),
	}
	go func() {
		s.client.Wait()
		s.lost()
	}()
	if keepAlive > 0 {
		go s.keepAlive(keepAlive)
	}
	return s, nil
}

func dialTransport(params SessionParams) (net.Conn, error) {
	direct := &net.Dialer{Timeout: DefaultDialTimeout}
	if params.ProxyAddr == "" {
		conn, err := direct.Dial("tcp", params.Addr())
		return conn, errors.Wrapf(err, "dial %s", params.Addr())
	}
	dialer, err := proxy.SOCKS5("tcp", params.ProxyAddr, nil, direct)
	if err != nil {
		return nil, errors.Wrapf(err, "socks5 proxy %s", params.ProxyAddr)
	}
	conn, err := dialer.Dial("tcp", params.Addr())
	return conn, errors.Wrapf(err, "dial %s via %s", params.Addr(), params.ProxyAddr)
}

type sshSession struct {
	client   *ssh.Client
	addr     string
	stat     stats.StatsReceiver
	done     chan struct{}
	doneOnce sync.Once
}

func (s *sshSession) Dial(network, addr string) (net.Conn, error) {
	return s.client.Dial(network, addr)
}

func (s *sshSession) Close() error {
	err := s.client.Close()
	s.lost()
	return err
}

func (s *sshSession) Done() <-chan struct{} { return s.done }

func (s *sshSession) lost() {
	s.doneOnce.Do(func() { close(s.done) })
}

// keepAlive probes the server every interval. A failed probe means the peer
// is gone, so the session is closed rather than retried.
func (s *sshSession) keepAlive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}
		if _, _, err := s.client.SendRequest(keepAliveRequest, true, nil); err != nil {
			s.stat.Counter(stats.TunnelKeepAliveFailureCounter).Inc(1)
			log.WithFields(log.Fields{
				"addr": s.addr,
				"err":  err,
			}).Warn("SSH keepalive failed, closing session")
			s.Close()
			return
		}
	}
}

// FingerprintCallback accepts only a host key matching fingerprint.
func FingerprintCallback(fingerprint string) ssh.HostKeyCallback {
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		if MatchFingerprint(key, fingerprint) {
			return nil
		}
		return errors.Errorf("host key for %s is %s, expected %s",
			hostname, ssh.FingerprintSHA256(key), fingerprint)
	}
}

// MatchFingerprint compares key against "SHA256:<base64>", or an MD5 or SHA1
// digest in colon separated hex. Hex comparison ignores case.
func MatchFingerprint(key ssh.PublicKey, fingerprint string) bool {
	fingerprint = strings.TrimSpace(fingerprint)
	if strings.HasPrefix(fingerprint, "SHA256:") {
		return ssh.FingerprintSHA256(key) == fingerprint
	}
	fingerprint = strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(fingerprint, "MD5:"), "SHA1:"))
	switch strings.Count(fingerprint, ":") {
	case 15:
		return ssh.FingerprintLegacyMD5(key) == fingerprint
	case 19:
		return colonHex(sha1.Sum(key.Marshal())) == fingerprint
	}
	return false
}

func colonHex(sum [sha1.Size]byte) string {
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	return strings.Join(parts, ":")
}
