package util

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
)

// BidirectionalCopy shuffles data between a peer (typically a
// protocol-wrapped connection) and a reader/writer pair (typically the
// terminal) until one side reaches EOF or the context is cancelled.
// raw is the underlying network connection; it is closed at the end to
// unblock whichever copy is still pending.
func BidirectionalCopy(ctx context.Context, peer io.ReadWriter, raw net.Conn, r io.Reader, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	// peer → writer
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := io.Copy(w, peer)
		errCh <- err
		cancel()
	}()

	// reader → peer
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := io.Copy(peer, r)
		// Half-close the write side so the remote knows we're done
		// sending, but keep the read side open to drain any remaining
		// data from the bridge (the other goroutine handles that).
		if tc, ok := raw.(*net.TCPConn); ok {
			tc.CloseWrite() //nolint:errcheck
		}
		errCh <- err
		// Only cancel on real errors; a normal EOF from the reader
		// should NOT tear down the connection before the remote
		// finishes sending.
		if err != nil {
			cancel()
		}
	}()

	<-ctx.Done()
	raw.Close() // unblock any pending reads/writes
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil && !isHarmless(err) {
			return err
		}
	}
	return nil
}

// isHarmless returns true for errors that are expected during shutdown.
func isHarmless(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	// net.OpError wrapping "use of closed network connection"
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, net.ErrClosed)
	}
	return false
}
