package udp

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strconv"

	"github.com/romshark/dgsched"
)

// Resolve resolves host to a destination with the given port.
// IP literals are returned as is, host names are looked up
// preferring IPv4 addresses.
// Errors wrap dgsched.ErrInvalidAddress.
func Resolve(ctx context.Context, host string, port uint16) (netip.AddrPort, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return netip.AddrPortFrom(addr.Unmap(), port), nil
	}

	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf(
			"%w: resolving %q: %w", dgsched.ErrInvalidAddress, host, err,
		)
	}
	if len(addrs) == 0 {
		return netip.AddrPort{}, fmt.Errorf(
			"%w: no addresses for %q", dgsched.ErrInvalidAddress, host,
		)
	}

	addr := addrs[0]
	for _, a := range addrs {
		if a.Unmap().Is4() {
			addr = a
			break
		}
	}
	return netip.AddrPortFrom(addr.Unmap(), port), nil
}

// ResolveAddrPort is similar to Resolve but accepts a "host:port" string.
func ResolveAddrPort(ctx context.Context, hostport string) (netip.AddrPort, error) {
	host, p, err := net.SplitHostPort(hostport)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: %w", dgsched.ErrInvalidAddress, err)
	}
	port, err := strconv.ParseUint(p, 10, 16)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf(
			"%w: invalid port %q", dgsched.ErrInvalidAddress, p,
		)
	}
	return Resolve(ctx, host, uint16(port))
}
