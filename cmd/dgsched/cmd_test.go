package main

import (
	"net"
	"net/netip"
	"strconv"
	"testing"
	"time"

	"github.com/romshark/dgsched"

	"github.com/stretchr/testify/require"
)

func setupEnv(t *testing.T) (*net.UDPConn, string) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("DGSCHED_BIND", "127.0.0.1:0")
	t.Setenv("DGSCHED_TTL", "16")
	t.Setenv("DGSCHED_LOG_LEVEL", "error")
	t.Setenv("DGSCHED_LOG_FORMAT", "text")

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	ap := conn.LocalAddr().(*net.UDPAddr).AddrPort()
	return conn, netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()).String()
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
	conn, dst := setupEnv(t)

	require.NoError(t, run([]string{"dgsched", "send", dst, "Hi"}))
	require.Equal(t, "Hi", receive(t, conn))
}

func TestAfter(t *testing.T) {
	conn, dst := setupEnv(t)

	require.NoError(t, run([]string{
		"dgsched", "after", "--delay", "20ms", dst, "Delay",
	}))
	require.Equal(t, "Delay", receive(t, conn))
}

func TestEvery(t *testing.T) {
	conn, dst := setupEnv(t)

	require.NoError(t, run([]string{
		"dgsched", "every", "--interval", "10ms", "--for", "55ms", dst, "Ping",
	}))
	require.Equal(t, "Ping", receive(t, conn))
}

func TestDemo(t *testing.T) {
	conn, dst := setupEnv(t)
	port := netip.MustParseAddrPort(dst).Port()
	if port > 65533 {
		t.Skipf("no room for consecutive ports after %d", port)
	}

	require.NoError(t, run([]string{
		"dgsched", "demo",
		"--host", "127.0.0.1",
		"--port", strconv.Itoa(int(port)),
		"--delay", "10ms",
		"--interval", "10ms",
		"--for", "50ms",
	}))
	require.Equal(t, "Hi", receive(t, conn))

	require.Error(t, run([]string{"dgsched", "demo", "--port", "65534"}))
}

func TestInvalidArguments(t *testing.T) {
	_, dst := setupEnv(t)

	require.Error(t, run([]string{"dgsched", "send", dst}))
	require.ErrorIs(t,
		run([]string{"dgsched", "send", "127.0.0.1", "Hi"}),
		dgsched.ErrInvalidAddress,
	)
	require.ErrorIs(t,
		run([]string{"dgsched", "every", "--interval", "0s", dst, "Ping"}),
		dgsched.ErrInvalidArgument,
	)
	require.Error(t, run([]string{
		"dgsched", "--env-file", "missing.env", "send", dst, "Hi",
	}))
}
