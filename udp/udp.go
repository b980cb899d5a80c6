// Package udp provides the datagram transport used by the scheduler
// and destination resolution.
package udp

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"

	"github.com/romshark/dgsched"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

var _ dgsched.PacketSender = (*Sender)(nil)

// Sender is a fire-and-forget UDP packet sender
// backed by a single unconnected socket.
type Sender struct {
	conn *net.UDPConn
	log  *slog.Logger
}

type options struct {
	ttl int
	log *slog.Logger
}

// Option configures a Sender.
type Option func(*options)

// WithTTL sets the unicast and multicast TTL (hop limit for IPv6)
// of outgoing packets. Values below 1 keep the system default.
func WithTTL(ttl int) Option {
	return func(o *options) { o.ttl = ttl }
}

// WithLogger sets the logger, slog.Default() is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// Listen opens a UDP socket bound to the local address bind
// (e.g. "0.0.0.0:0").
func Listen(bind string, opts ...Option) (*Sender, error) {
	o := options{log: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ttl > 255 {
		return nil, fmt.Errorf("ttl %d out of range", o.ttl)
	}

	laddr, err := net.ResolveUDPAddr("udp", bind)
	if err != nil {
		return nil, fmt.Errorf("resolving bind address %q: %w", bind, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("listening on %q: %w", bind, err)
	}

	s := &Sender{conn: conn, log: o.log}
	if o.ttl > 0 {
		if err := s.setTTL(o.ttl); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("setting ttl: %w", err)
		}
	}

	s.log.Debug("udp sender listening",
		slog.String("local", conn.LocalAddr().String()),
		slog.Int("ttl", o.ttl),
	)
	return s, nil
}

// setTTL applies ttl to both address families.
// It only fails if neither family accepts the option.
func (s *Sender) setTTL(ttl int) error {
	p4 := ipv4.NewPacketConn(s.conn)
	err4 := errors.Join(p4.SetTTL(ttl), p4.SetMulticastTTL(ttl))

	p6 := ipv6.NewPacketConn(s.conn)
	err6 := errors.Join(p6.SetHopLimit(ttl), p6.SetMulticastHopLimit(ttl))

	if err4 != nil && err6 != nil {
		return errors.Join(err4, err6)
	}
	return nil
}

// Send writes payload to dst as a single datagram.
func (s *Sender) Send(dst netip.AddrPort, payload []byte) error {
	if _, err := s.conn.WriteToUDPAddrPort(payload, dst); err != nil {
		return fmt.Errorf("writing to %s: %w", dst, err)
	}
	return nil
}

// LocalAddr returns the address the socket is bound to.
func (s *Sender) LocalAddr() netip.AddrPort {
	ap := s.conn.LocalAddr().(*net.UDPAddr).AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

// Close closes the underlying socket.
func (s *Sender) Close() error {
	return s.conn.Close()
}
