package udp_test

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/romshark/dgsched"
	"github.com/romshark/dgsched/udp"

	"github.com/stretchr/testify/require"
)

func listenReceiver(t *testing.T) (*net.UDPConn, netip.AddrPort) {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	ap := conn.LocalAddr().(*net.UDPAddr).AddrPort()
	return conn, netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

func receive(t *testing.T, conn *net.UDPConn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1500)
	n, _, err := conn.ReadFromUDPAddrPort(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func TestSend(t *testing.T) {
	recv, dst := listenReceiver(t)

	s, err := udp.Listen("127.0.0.1:0", udp.WithTTL(16))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.True(t, s.LocalAddr().Addr().IsLoopback())
	require.NotZero(t, s.LocalAddr().Port())

	require.NoError(t, s.Send(dst, []byte("Hi")))
	require.Equal(t, "Hi", receive(t, recv))
}

func TestListenInvalid(t *testing.T) {
	_, err := udp.Listen("not-an-address")
	require.Error(t, err)

	_, err = udp.Listen("127.0.0.1:0", udp.WithTTL(256))
	require.Error(t, err)
}

func TestSendClosed(t *testing.T) {
	_, dst := listenReceiver(t)

	s, err := udp.Listen("127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.ErrorIs(t, s.Send(dst, []byte("Hi")), net.ErrClosed)
}

func TestScheduler(t *testing.T) {
	recv, dst := listenReceiver(t)

	sender, err := udp.Listen("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sender.Close() })

	s := dgsched.New(sender)
	t.Cleanup(s.Shutdown)

	require.NoError(t, s.SendNow(dst, []byte("Hi")))
	require.Equal(t, "Hi", receive(t, recv))

	_, err = s.SendAfter(0, dst, []byte("Delay"))
	require.NoError(t, err)
	require.Equal(t, "Delay", receive(t, recv))

	id, err := s.SendPeriodic(dgsched.Hour, dst, []byte("Ping"))
	require.NoError(t, err)
	s.AdvanceToNext()
	require.Equal(t, "Ping", receive(t, recv))
	require.True(t, s.CancelPeriodic(id))
}

func TestResolve(t *testing.T) {
	ctx := context.Background()

	dst, err := udp.Resolve(ctx, "127.0.0.1", 5000)
	require.NoError(t, err)
	require.Equal(t, netip.MustParseAddrPort("127.0.0.1:5000"), dst)

	dst, err = udp.Resolve(ctx, "::ffff:127.0.0.1", 5001)
	require.NoError(t, err)
	require.Equal(t, netip.MustParseAddrPort("127.0.0.1:5001"), dst)

	dst, err = udp.ResolveAddrPort(ctx, "[::1]:5002")
	require.NoError(t, err)
	require.Equal(t, netip.MustParseAddrPort("[::1]:5002"), dst)
}

func TestResolveInvalid(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := udp.Resolve(ctx, "example.invalid", 5000)
	require.ErrorIs(t, err, dgsched.ErrInvalidAddress)

	for _, hostport := range []string{
		"127.0.0.1",
		"127.0.0.1:http-alt",
		"127.0.0.1:70000",
	} {
		_, err = udp.ResolveAddrPort(context.Background(), hostport)
		require.ErrorIs(t, err, dgsched.ErrInvalidAddress, hostport)
	}
}
