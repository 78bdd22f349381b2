package serial

import (
	"bytes"
	"fmt"
	"io/fs"
	"sync"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/require"
	gobug "go.bug.st/serial"

	"serbridge/config"
	sberr "serbridge/internal/errors"
)

// fakePort scripts the device side of the endpoint.
type fakePort struct {
	readData chan []byte
	readErr  chan error
	closed   chan struct{}
	once     sync.Once

	mu       sync.Mutex
	writes   bytes.Buffer
	writeErr error
}

func newFakePort() *fakePort {
	return &fakePort{
		readData: make(chan []byte, 8),
		readErr:  make(chan error, 1),
		closed:   make(chan struct{}),
	}
}

func (f *fakePort) SetReadTimeout(time.Duration) error { return nil }

func (f *fakePort) Read(p []byte) (int, error) {
	select {
	case chunk := <-f.readData:
		return copy(p, chunk), nil
	case err := <-f.readErr:
		return 0, err
	case <-f.closed:
		return 0, fmt.Errorf("port closed")
	case <-time.After(2 * time.Millisecond):
		return 0, nil // poll timeout: no data ready
	}
}

func (f *fakePort) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	return f.writes.Write(p)
}

func (f *fakePort) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakePort) written() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.writes.Bytes()...)
}

// openFake reroutes Open onto fp for the duration of a test.
func openFake(t *testing.T, fp *fakePort) {
	t.Helper()
	prev := openPort
	openPort = func(string, *gobug.Mode) (port, error) { return fp, nil }
	t.Cleanup(func() { openPort = prev })
}

func testSpec() config.DeviceSpec {
	return config.DeviceSpec{Path: "/dev/ttyFAKE", Baud: 115200, DataBits: 8, Parity: 'N', StopBits: 1}
}

func TestEndpoint_ReadDelivery(t *testing.T) {
	fp := newFakePort()
	openFake(t, fp)

	e, err := Open(testSpec(), 512, 5*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })

	fp.readData <- []byte("hello")

	select {
	case chunk := <-e.Data():
		require.Equal(t, []byte("hello"), chunk)
		e.Recycle(chunk)
	case err := <-e.Errs():
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for chunk")
	}
}

func TestEndpoint_PollTimeoutIsNotAnError(t *testing.T) {
	fp := newFakePort()
	openFake(t, fp)

	e, err := Open(testSpec(), 512, 5*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })

	// Dozens of empty polls go by; none may surface as an error.
	select {
	case err := <-e.Errs():
		t.Fatalf("poll timeout surfaced as error: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	// Data still flows afterwards.
	fp.readData <- []byte("late")
	select {
	case chunk := <-e.Data():
		require.Equal(t, []byte("late"), chunk)
		e.Recycle(chunk)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for chunk after idle polls")
	}
}

func TestEndpoint_WriteCompletion(t *testing.T) {
	fp := newFakePort()
	openFake(t, fp)

	e, err := Open(testSpec(), 512, 5*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })

	buf := e.Buffer()
	n := copy(buf, "ATZ\r")
	e.Write(buf[:n])

	select {
	case done := <-e.Done():
		require.Equal(t, 4, done)
	case err := <-e.Errs():
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for write completion")
	}
	require.Equal(t, []byte("ATZ\r"), fp.written())
}

func TestEndpoint_ReadErrorIsFatal(t *testing.T) {
	fp := newFakePort()
	openFake(t, fp)

	e, err := Open(testSpec(), 512, 5*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })

	fp.readErr <- fmt.Errorf("input/output error")

	select {
	case err := <-e.Errs():
		var se *sberr.SerialError
		require.ErrorAs(t, err, &se)
		require.Equal(t, "read", se.Op)
		require.Equal(t, "/dev/ttyFAKE", se.Path)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for fatal read error")
	}
}

func TestEndpoint_WriteErrorIsFatal(t *testing.T) {
	fp := newFakePort()
	fp.writeErr = fmt.Errorf("broken pipe")
	openFake(t, fp)

	e, err := Open(testSpec(), 512, 5*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })

	buf := e.Buffer()
	n := copy(buf, "x")
	e.Write(buf[:n])

	select {
	case err := <-e.Errs():
		var se *sberr.SerialError
		require.ErrorAs(t, err, &se)
		require.Equal(t, "write", se.Op)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for fatal write error")
	}
}

func TestEndpoint_CloseIdempotent(t *testing.T) {
	fp := newFakePort()
	openFake(t, fp)

	e, err := Open(testSpec(), 512, 5*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
}

func TestOpen_Failure(t *testing.T) {
	prev := openPort
	openPort = func(string, *gobug.Mode) (port, error) {
		return nil, fmt.Errorf("open: %w", fs.ErrNotExist)
	}
	t.Cleanup(func() { openPort = prev })

	_, err := Open(testSpec(), 512, 5*time.Millisecond)
	require.Error(t, err)
	require.Equal(t, sberr.SerialNotFound, sberr.SerialCodeOf(err))
}

// TestEndpoint_PTY drives the endpoint through the real library
// against a pseudo-terminal standing in for the device.
func TestEndpoint_PTY(t *testing.T) {
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	spec := config.DeviceSpec{Path: slave.Name(), Baud: 115200, DataBits: 8, Parity: 'N', StopBits: 1}
	e, err := Open(spec, 512, 20*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })

	// device → endpoint
	_, err = master.Write([]byte("ping"))
	require.NoError(t, err)
	select {
	case chunk := <-e.Data():
		require.Equal(t, []byte("ping"), chunk)
		e.Recycle(chunk)
	case err := <-e.Errs():
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for pty data")
	}

	// endpoint → device
	buf := e.Buffer()
	n := copy(buf, "pong")
	e.Write(buf[:n])
	select {
	case <-e.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for write completion")
	}

	rbuf := make([]byte, 16)
	require.NoError(t, master.SetReadDeadline(time.Now().Add(2*time.Second)))
	rn, err := master.Read(rbuf)
	require.NoError(t, err)
	require.Equal(t, []byte("pong"), rbuf[:rn])
}
