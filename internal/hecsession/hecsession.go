// Package hecsession owns the persistent TCP (optionally TLS 1.2)
// connection a Worker holds open to one Splunk HEC endpoint.
//
// The source couples an OpenSSL session directly to a raw file
// descriptor. This reimplementation models the session as a variant
// over {plain TCP, TLS 1.2 client} behind one read/write/status
// surface, per the "transport abstraction with two variants" design
// note, so the Worker never has to branch on TLS itself.
package hecsession

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"
)

// readTimeout bounds every Read call so the Worker's steady-state loop
// can periodically observe its shutdown flag even with a silent HEC peer.
const readTimeout = 1 * time.Second

// reestablishInterval is the fixed delay between reconnect attempts in
// Reestablish, per spec.md §4.2. It is a var, not a const, so tests can
// shrink it rather than waiting out the real 10s between attempts.
var reestablishInterval = 10 * time.Second

// keepaliveInterval is used for both the keepalive idle time and probe
// interval; net.TCPConn exposes a single SetKeepAlivePeriod knob, unlike
// the source's separate idle/interval socket options.
const keepaliveInterval = 60 * time.Second

// dialTimeout bounds the initial TCP connect attempt.
const dialTimeout = 10 * time.Second

// Endpoint identifies one Splunk HEC target.
type Endpoint struct {
	Host  string
	Port  int
	Token string
}

// Addr returns the endpoint's dial address.
func (e Endpoint) Addr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// Startup failure kinds. A Worker that receives one of these from
// Initialize signals the Supervisor to terminate the whole process —
// these are never retried automatically.
var (
	ErrDNS           = errors.New("hecsession: could not resolve host")
	ErrConnect       = errors.New("hecsession: could not connect")
	ErrKeepalive     = errors.New("hecsession: could not enable keepalive")
	ErrTLSHandshake  = errors.New("hecsession: TLS handshake failed")
)

// Session is one persistent connection to a Splunk HEC endpoint. It is
// owned exclusively by one Worker; it does not classify its own
// failures beyond tracking whether a write has observed a broken pipe —
// the Worker is the one that interprets read/write/status results into
// recovery decisions, per spec.md §4.2's invariant.
type Session struct {
	endpoint   Endpoint
	tlsEnabled bool
	conn       net.Conn
	broken     atomic.Bool
}

// New creates an unconnected Session for the given endpoint.
func New(endpoint Endpoint, tlsEnabled bool) *Session {
	return &Session{endpoint: endpoint, tlsEnabled: tlsEnabled}
}

// Endpoint returns the endpoint this session targets.
func (s *Session) Endpoint() Endpoint {
	return s.endpoint
}

// Initialize opens the TCP connection, enables keepalive, and — if TLS
// is enabled — performs a TLS 1.2 client handshake. On success the
// session is "up" and ready for Write/Read.
func (s *Session) Initialize(ctx context.Context) error {
	if _, err := net.LookupHost(s.endpoint.Host); err != nil {
		if ip := net.ParseIP(s.endpoint.Host); ip == nil {
			return fmt.Errorf("%w: %s: %v", ErrDNS, s.endpoint.Host, err)
		}
	}

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.endpoint.Addr())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnect, err)
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetKeepAlive(true); err != nil {
			_ = conn.Close()
			return fmt.Errorf("%w: %v", ErrKeepalive, err)
		}
		if err := tcpConn.SetKeepAlivePeriod(keepaliveInterval); err != nil {
			_ = conn.Close()
			return fmt.Errorf("%w: %v", ErrKeepalive, err)
		}
	}

	if s.tlsEnabled {
		tlsConn := tls.Client(conn, &tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: s.endpoint.Host,
		})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return fmt.Errorf("%w: %v", ErrTLSHandshake, err)
		}
		conn = tlsConn
	}

	s.conn = conn
	s.broken.Store(false)
	return nil
}

// Write writes b to the session. A short write is not itself an error
// here — the Worker decides what a short write means — but any write
// error is recorded as a broken pipe for the next Status() check.
func (s *Session) Write(b []byte) (int, error) {
	n, err := s.conn.Write(b)
	if err != nil {
		s.broken.Store(true)
	}
	return n, err
}

// Read reads into b with a fixed 1-second deadline so the caller's loop
// can observe shutdown even against a silent peer. A timeout is
// returned as a normal net.Error (not marked broken); any other read
// error is recorded as broken.
func (s *Session) Read(b []byte) (int, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		return 0, err
	}
	n, err := s.conn.Read(b)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return n, err
		}
		s.broken.Store(true)
	}
	return n, err
}

// Status reports whether the session is healthy. It never itself
// transitions the session to "down" — it only reports the broken-pipe
// flag set by a prior Write or Read failure, per spec.md §4.2: "the
// Session itself does not classify — the Worker does."
func (s *Session) Status() error {
	if s.broken.Load() {
		return errors.New("hecsession: broken pipe")
	}
	return nil
}

// MarkBroken flags the session as down. The Worker calls this when a
// Write returns an error; a short write without an error only logs a
// warning there and does not mark the session.
func (s *Session) MarkBroken() {
	s.broken.Store(true)
}

// ClearBroken resets the broken-pipe flag after a successful Reestablish.
func (s *Session) ClearBroken() {
	s.broken.Store(false)
}

// Close tears down the underlying connection.
func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Reestablish retries Initialize every 10 seconds until it succeeds or
// ctx is cancelled. This is the only sanctioned way to recover a broken
// session; it blocks the calling Worker for its entire duration.
func (s *Session) Reestablish(ctx context.Context) error {
	_ = s.Close()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := s.Initialize(ctx); err == nil {
			return nil
		}

		select {
		case <-time.After(reestablishInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
