package bridge

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/require"

	"serbridge/config"
	sberr "serbridge/internal/errors"
	"serbridge/internal/metrics"
	"serbridge/internal/serial"
	"serbridge/internal/telnet"
)

// greeting is the option burst every telnet client receives on
// connect.
var greeting = []byte{
	telnet.IAC, telnet.WILL, telnet.OptEcho,
	telnet.IAC, telnet.WILL, telnet.OptSuppressGoAhead,
	telnet.IAC, telnet.DO, telnet.OptSuppressGoAhead,
}

// harness runs a serving bridge against a pseudo-terminal that stands
// in for the device. The master side plays the device's UART.
type harness struct {
	master  *os.File
	dev     *serial.Endpoint
	ln      net.Listener
	metrics *metrics.Collector
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

func startBridge(t *testing.T, opts Options) *harness {
	t.Helper()

	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	spec := config.DeviceSpec{Path: slave.Name(), Baud: 115200, DataBits: 8, Parity: 'N', StopBits: 1}
	bufSize := opts.BufferSize
	if bufSize <= 0 {
		bufSize = config.DefaultBufferSize
	}
	dev, err := serial.Open(spec, bufSize, 5*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { dev.Close() })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	h := &harness{
		master:  master,
		dev:     dev,
		ln:      ln,
		metrics: opts.Metrics,
		done:    make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	b := New(dev, ln, opts)
	go func() {
		h.err = b.Run(ctx)
		close(h.done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(2 * time.Second):
			t.Error("bridge did not shut down")
		}
	})
	return h
}

func (h *harness) dial(t *testing.T) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", h.ln.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readExact(t *testing.T, conn net.Conn, n int) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, n)
	_, err := io.ReadFull(conn, buf)
	require.NoError(t, err)
	return buf
}

func expectGreeting(t *testing.T, conn net.Conn) {
	t.Helper()
	require.Equal(t, greeting, readExact(t, conn, len(greeting)))
}

func expectDevice(t *testing.T, master *os.File, want []byte) {
	t.Helper()
	require.NoError(t, master.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, len(want))
	_, err := io.ReadFull(master, buf)
	require.NoError(t, err)
	require.Equal(t, want, buf)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

// ── Scenarios ────────────────────────────────────────────────────────

func TestBridge_PassThrough(t *testing.T) {
	h := startBridge(t, Options{})
	client := h.dial(t)
	expectGreeting(t, client)

	// device → client
	_, err := h.master.Write([]byte("AT\r\n"))
	require.NoError(t, err)
	require.Equal(t, []byte("AT\r\n"), readExact(t, client, 4))

	// client → device
	_, err = client.Write([]byte("ok\r"))
	require.NoError(t, err)
	expectDevice(t, h.master, []byte("ok\r"))
}

func TestBridge_ReplyBeforeDeviceData(t *testing.T) {
	h := startBridge(t, Options{})
	client := h.dial(t)
	expectGreeting(t, client)

	// The client offers to echo; the bridge accepts. Only then does
	// the device speak, so the reply must come through first.
	_, err := client.Write([]byte{telnet.IAC, telnet.WILL, telnet.OptEcho})
	require.NoError(t, err)
	require.Equal(t, []byte{telnet.IAC, telnet.DO, telnet.OptEcho}, readExact(t, client, 3))

	_, err = h.master.Write([]byte("AT\r\n"))
	require.NoError(t, err)
	require.Equal(t, []byte("AT\r\n"), readExact(t, client, 4))
}

func TestBridge_IACRoundTrip(t *testing.T) {
	h := startBridge(t, Options{})
	client := h.dial(t)
	expectGreeting(t, client)

	// A literal 0xFF from the device is doubled on the wire.
	_, err := h.master.Write([]byte{0x41, 0xFF, 0x42})
	require.NoError(t, err)
	require.Equal(t, []byte{0x41, 0xFF, 0xFF, 0x42}, readExact(t, client, 4))

	// A doubled IAC from the client lands on the device as one byte.
	_, err = client.Write([]byte{0xFF, 0xFF})
	require.NoError(t, err)
	expectDevice(t, h.master, []byte{0xFF})
}

func TestBridge_SubnegotiationSwallowed(t *testing.T) {
	h := startBridge(t, Options{})
	client := h.dial(t)
	expectGreeting(t, client)

	// A subnegotiation block never reaches the device; the payload
	// around it does.
	msg := []byte{'a', telnet.IAC, telnet.SB, 31, 0, 80, 0, 24, telnet.IAC, telnet.SE, 'b'}
	_, err := client.Write(msg)
	require.NoError(t, err)
	expectDevice(t, h.master, []byte("ab"))
}

func TestBridge_RefusesSecondClient(t *testing.T) {
	h := startBridge(t, Options{})
	c1 := h.dial(t)
	expectGreeting(t, c1)

	c2 := h.dial(t)
	require.NoError(t, c2.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := c2.Read(make([]byte, 1))
	require.Error(t, err, "second client should be closed without a greeting")

	// The first session is untouched.
	_, err = h.master.Write([]byte("x"))
	require.NoError(t, err)
	require.Equal(t, []byte("x"), readExact(t, c1, 1))
	require.EqualValues(t, 1, h.metrics.RefusedSessions())
}

func TestBridge_ClientReconnect(t *testing.T) {
	h := startBridge(t, Options{})

	c1 := h.dial(t)
	expectGreeting(t, c1)
	_, err := h.master.Write([]byte("one"))
	require.NoError(t, err)
	require.Equal(t, []byte("one"), readExact(t, c1, 3))

	c1.Close()
	waitFor(t, func() bool { return h.metrics.ActiveSessions() == 0 },
		"bridge did not notice the disconnect")

	c2 := h.dial(t)
	expectGreeting(t, c2)
	_, err = h.master.Write([]byte("two"))
	require.NoError(t, err)
	require.Equal(t, []byte("two"), readExact(t, c2, 3))
	require.EqualValues(t, 2, h.metrics.TotalSessions())
}

func TestBridge_SerialFailureFatal(t *testing.T) {
	h := startBridge(t, Options{})
	client := h.dial(t)
	expectGreeting(t, client)

	// Pulling the master side makes the device vanish mid-session.
	h.master.Close()

	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not stop after serial failure")
	}
	var se *sberr.SerialError
	require.ErrorAs(t, h.err, &se)
	require.Equal(t, sberr.SerialDisconnected, se.Code)

	// The session went down with it.
	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := client.Read(make([]byte, 8))
	require.Error(t, err)
}

func TestBridge_ShutdownReturnsNil(t *testing.T) {
	h := startBridge(t, Options{})
	client := h.dial(t)
	expectGreeting(t, client)

	h.cancel()
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not exit on cancel")
	}
	require.NoError(t, h.err)
}

// ── Forwarding ───────────────────────────────────────────────────────

func TestBridge_ForwardRelay(t *testing.T) {
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	spec := config.DeviceSpec{Path: slave.Name(), Baud: 115200, DataBits: 8, Parity: 'N', StopBits: 1}
	dev, err := serial.Open(spec, 512, 5*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { dev.Close() })

	local, peer := net.Pipe()
	t.Cleanup(func() { local.Close(); peer.Close() })

	b := NewConnected(dev, local, Options{Raw: true})
	result := make(chan error, 1)
	go func() { result <- b.Run(context.Background()) }()

	// peer → device
	_, err = peer.Write([]byte("boot"))
	require.NoError(t, err)
	expectDevice(t, master, []byte("boot"))

	// device → peer, verbatim: raw links do not escape IAC
	_, err = master.Write([]byte{0xFF, 0x07})
	require.NoError(t, err)
	require.NoError(t, peer.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 2)
	_, err = io.ReadFull(peer, buf)
	require.NoError(t, err)
	require.Equal(t, []byte{0xFF, 0x07}, buf)

	// Dropping the peer ends Run with a retryable error.
	peer.Close()
	select {
	case err := <-result:
		var ne *sberr.NetworkError
		require.ErrorAs(t, err, &ne)
		require.True(t, sberr.IsRetryable(err))
	case <-time.After(2 * time.Second):
		t.Fatal("forwarding bridge did not report the dropped peer")
	}
}

// ── Flow control ─────────────────────────────────────────────────────

func TestBridge_Watermarks(t *testing.T) {
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	spec := config.DeviceSpec{Path: slave.Name(), Baud: 115200, DataBits: 8, Parity: 'N', StopBits: 1}
	dev, err := serial.Open(spec, 256, 5*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { dev.Close() })

	m := metrics.New()
	b := New(dev, nil, Options{BufferSize: 256, HighWater: 2048, LowWater: 512, Metrics: m})

	// Drive the device-data handler directly with worst-case chunks
	// (all IAC, so escaping doubles them) and no client draining.
	for i := 0; ; i++ {
		b.updateFlow()
		if b.devPaused {
			break
		}
		require.Less(t, i, 100, "reader never paused")
		b.onDeviceData(bytes.Repeat([]byte{telnet.IAC}, 256))
	}

	require.LessOrEqual(t, b.toNet.Len(), 2048+2*256,
		"pending exceeded HighWater + 2×BufferSize")
	require.EqualValues(t, 1, m.FlowStalls())

	// Draining below LowWater resumes reads.
	b.toNet.Advance(b.toNet.Len() - 256)
	b.updateFlow()
	require.False(t, b.devPaused)
}

// ── Bulk transfer ────────────────────────────────────────────────────

func TestBridge_BulkOrdering(t *testing.T) {
	h := startBridge(t, Options{})
	raw := h.dial(t)

	// Drive the client side through the decoding Conn so escaped
	// bytes and the greeting are handled for us.
	client := telnet.NewConn(raw)

	payload := make([]byte, 64*1024)
	for i := range payload {
		payload[i] = byte(i * 31)
	}

	go func() {
		for off := 0; off < len(payload); off += 4096 {
			if _, err := h.master.Write(payload[off : off+4096]); err != nil {
				return
			}
		}
	}()

	require.NoError(t, raw.SetReadDeadline(time.Now().Add(10*time.Second)))
	got := make([]byte, len(payload))
	_, err := io.ReadFull(client, got)
	require.NoError(t, err)
	require.Equal(t, payload, got, "bytes reordered or corrupted in transit")
}
