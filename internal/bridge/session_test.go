package bridge

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSession_Pumps(t *testing.T) {
	local, peer := net.Pipe()
	t.Cleanup(func() { peer.Close() })

	s := newSession(local, nil, 64)
	t.Cleanup(s.close)
	require.NotEmpty(t, s.id)
	require.Equal(t, "pipe", s.remote)

	// peer → session
	go peer.Write([]byte("in")) //nolint:errcheck
	select {
	case chunk := <-s.data:
		require.Equal(t, []byte("in"), chunk)
		s.recycle(chunk)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for inbound chunk")
	}

	// session → peer
	buf := s.buffer()
	n := copy(buf, "out")
	s.write(buf[:n])

	require.NoError(t, peer.SetReadDeadline(time.Now().Add(2*time.Second)))
	out := make([]byte, 3)
	_, err := io.ReadFull(peer, out)
	require.NoError(t, err)
	require.Equal(t, []byte("out"), out)

	select {
	case n := <-s.done:
		require.Equal(t, 3, n)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for write completion")
	}
}

func TestSession_ReportsPeerClose(t *testing.T) {
	local, peer := net.Pipe()
	s := newSession(local, nil, 64)
	t.Cleanup(s.close)

	peer.Close()
	select {
	case err := <-s.errs:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not report the closed peer")
	}
}

func TestSession_CloseIdempotent(t *testing.T) {
	local, peer := net.Pipe()
	defer peer.Close()

	s := newSession(local, nil, 64)
	s.close()
	s.close() // second call must be a no-op
}
