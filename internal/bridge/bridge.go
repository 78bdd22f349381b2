// Package bridge pumps bytes between an open serial device and a
// network client, speaking the telnet subset toward the client.
//
// All mutable state (lifecycle, negotiation, pending buffers) is
// owned by the single goroutine running [Bridge.Run]. The I/O pumps
// are stateless: they convert blocking reads and writes into channel
// events and nothing else. Backpressure is expressed by dropping a
// source's channel from the select set once the destination's pending
// buffer passes the high-water mark, and picking it up again below
// the low-water mark.
package bridge

import (
	"context"
	"io"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"serbridge/config"
	sberr "serbridge/internal/errors"
	"serbridge/internal/metrics"
	"serbridge/internal/serial"
	"serbridge/internal/telnet"
)

// ── Lifecycle ────────────────────────────────────────────────────────

type state int

const (
	stateListening state = iota
	stateConnected
	stateDraining // client gone, device-bound bytes still flushing
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateListening:
		return "listening"
	case stateConnected:
		return "connected"
	case stateDraining:
		return "draining"
	case stateClosed:
		return "closed"
	}
	return "unknown"
}

// ── Bridge ───────────────────────────────────────────────────────────

// Options tunes a bridge. Zero fields fall back to the config
// defaults.
type Options struct {
	BufferSize int
	HighWater  int
	LowWater   int
	// Raw relays bytes verbatim with no telnet layer, for
	// bridge-to-bridge links.
	Raw     bool
	Metrics *metrics.Collector
}

func (o *Options) normalize() {
	if o.BufferSize <= 0 {
		o.BufferSize = config.DefaultBufferSize
	}
	if o.HighWater <= 0 {
		o.HighWater = config.DefaultHighWater
	}
	if o.LowWater <= 0 {
		o.LowWater = config.DefaultLowWater
	}
}

// Bridge owns one serial endpoint and at most one client session.
//
// A pending buffer holds at most HighWater + 2×BufferSize bytes: the
// device reader is paused once the buffer passes HighWater, and the
// one chunk already read can at worst double under IAC escaping.
type Bridge struct {
	dev     *serial.Endpoint
	ln      net.Listener // nil on a forwarding bridge
	initial net.Conn     // pre-established peer, forwarding only
	opts    Options

	state state
	cause error // what Run returns once the loop stops
	sess  *session

	toNet    pending // device → client, wire-ready
	toSerial pending // client → device, decoded

	devWriting bool
	netWriting bool
	devPaused  bool
	netPaused  bool

	conns chan net.Conn
	stop  chan struct{}
}

// New returns a serving bridge: it accepts one client at a time on ln
// and speaks the telnet subset to it.
func New(dev *serial.Endpoint, ln net.Listener, opts Options) *Bridge {
	opts.normalize()
	return &Bridge{
		dev:   dev,
		ln:    ln,
		opts:  opts,
		conns: make(chan net.Conn),
		stop:  make(chan struct{}),
	}
}

// NewConnected returns a forwarding bridge over a pre-established
// connection. Run returns when the peer drops, so the caller decides
// about reconnecting.
func NewConnected(dev *serial.Endpoint, conn net.Conn, opts Options) *Bridge {
	opts.normalize()
	return &Bridge{
		dev:     dev,
		initial: conn,
		opts:    opts,
		conns:   make(chan net.Conn),
		stop:    make(chan struct{}),
	}
}

// Run drives the bridge until the context is cancelled (returns nil),
// the device fails (returns the SerialError), or, on a forwarding
// bridge, the peer drops (returns the retryable NetworkError).
// The bridge borrows the endpoint and the listener: closing them
// stays with the caller, so a forwarding caller can reconnect over
// the still-open device.
func (b *Bridge) Run(ctx context.Context) error {
	if b.ln != nil {
		go b.acceptLoop()
	}
	if b.initial != nil {
		b.connect(b.initial)
		b.initial = nil
	}

	tick := time.NewTicker(time.Second)
	defer tick.Stop()

	defer close(b.stop)

	for b.state != stateClosed {
		b.updateFlow()

		// Arm only the sources whose events the current state can
		// use; a nil channel never fires.
		var (
			devData <-chan []byte
			netData <-chan []byte
			netDone <-chan int
			netErrs <-chan error
			conns   <-chan net.Conn
		)
		if b.state == stateConnected && !b.devPaused {
			devData = b.dev.Data()
		}
		if b.sess != nil {
			netDone = b.sess.done
			netErrs = b.sess.errs
			if b.state == stateConnected && !b.netPaused {
				netData = b.sess.data
			}
		}
		if b.ln != nil {
			conns = b.conns
		}

		select {
		case <-ctx.Done():
			b.shutdown()
		case conn := <-conns:
			b.accept(conn)
		case chunk := <-devData:
			b.onDeviceData(chunk)
		case n := <-b.dev.Done():
			b.onDeviceWrote(n)
		case err := <-b.dev.Errs():
			b.onDeviceError(err)
		case chunk := <-netData:
			b.onClientData(chunk)
		case n := <-netDone:
			b.onClientWrote(n)
		case err := <-netErrs:
			b.disconnect(err)
		case <-tick.C:
			log.WithFields(log.Fields{
				"state":     b.state.String(),
				"to_net":    b.toNet.Len(),
				"to_serial": b.toSerial.Len(),
			}).Trace("bridge heartbeat")
		}
	}

	return b.cause
}

// ── Event handlers ───────────────────────────────────────────────────

// updateFlow applies the watermark hysteresis: pause a reader above
// HighWater, resume it below LowWater.
func (b *Bridge) updateFlow() {
	switch {
	case !b.devPaused && b.toNet.Len() > b.opts.HighWater:
		b.devPaused = true
		b.opts.Metrics.FlowStall()
		log.WithField("pending", b.toNet.Len()).Trace("device reads paused")
	case b.devPaused && b.toNet.Len() < b.opts.LowWater:
		b.devPaused = false
	}
	switch {
	case !b.netPaused && b.toSerial.Len() > b.opts.HighWater:
		b.netPaused = true
		b.opts.Metrics.FlowStall()
		log.WithField("pending", b.toSerial.Len()).Trace("client reads paused")
	case b.netPaused && b.toSerial.Len() < b.opts.LowWater:
		b.netPaused = false
	}
}

func (b *Bridge) accept(conn net.Conn) {
	if b.state != stateListening {
		// One session at a time: accept at the transport level,
		// close immediately.
		b.opts.Metrics.SessionRefused()
		log.Warnf("refusing %s, session active", conn.RemoteAddr())
		conn.Close()
		return
	}
	b.connect(conn)
}

func (b *Bridge) connect(conn net.Conn) {
	var tel *telnet.Session
	if !b.opts.Raw {
		tel = telnet.NewSession()
	}
	b.sess = newSession(conn, tel, b.opts.BufferSize)
	b.state = stateConnected
	b.opts.Metrics.SessionOpened()
	log.WithField("session", b.sess.id).Infof("Connect: %s", b.sess.remote)

	if tel != nil {
		b.toNet.Append(tel.Greeting())
		b.flushNet()
	}
}

func (b *Bridge) onDeviceData(chunk []byte) {
	b.opts.Metrics.BytesToNet(int64(len(chunk)))
	if b.opts.Raw {
		b.toNet.Append(chunk)
	} else {
		b.toNet.Append(telnet.Escape(chunk))
	}
	b.dev.Recycle(chunk)
	b.flushNet()
}

func (b *Bridge) onClientData(chunk []byte) {
	data, replies := chunk, []byte(nil)
	if b.sess.tel != nil {
		data, replies = b.sess.tel.Feed(chunk)
		if !b.sess.acked && b.sess.tel.CharacterMode() {
			b.sess.acked = true
			log.WithField("session", b.sess.id).Debug("client acknowledged character mode")
		}
	}
	if len(replies) > 0 {
		b.toNet.Append(replies)
	}
	if len(data) > 0 {
		b.opts.Metrics.BytesToSerial(int64(len(data)))
		b.toSerial.Append(data)
	}
	b.sess.recycle(chunk)
	b.flushSerial()
	b.flushNet()
}

func (b *Bridge) onDeviceWrote(n int) {
	b.devWriting = false
	b.toSerial.Advance(n)
	if b.state == stateDraining {
		if b.toSerial.Len() == 0 {
			b.finishDrain()
		} else {
			b.flushSerial()
		}
		return
	}
	b.flushSerial()
}

func (b *Bridge) onClientWrote(n int) {
	b.netWriting = false
	b.toNet.Advance(n)
	b.flushNet()
}

func (b *Bridge) onDeviceError(err error) {
	// There is exactly one device; losing it ends the bridge.
	log.Errorf("serial failure: %v", err)
	b.opts.Metrics.RecordError(err.Error())
	if b.sess != nil {
		b.closeSession()
	}
	b.state = stateClosed
	b.cause = err
}

// disconnect handles the client going away. Client-bound bytes are
// dropped; device-bound bytes are still written out. Afterwards a
// serving bridge listens again and a forwarding bridge reports the
// loss.
func (b *Bridge) disconnect(err error) {
	entry := log.WithField("session", b.sess.id)
	if err != nil && !sberr.Is(err, io.EOF) {
		entry = entry.WithField("reason", err.Error())
	}
	entry.Infof("Disconnect: %s", b.sess.remote)

	remote := b.sess.remote
	b.closeSession()
	b.toNet.Reset()
	b.netWriting = false

	if b.ln == nil {
		b.cause = &sberr.NetworkError{
			Op: "relay", Addr: remote, Err: err, Retryable: true,
		}
	}
	if b.toSerial.Len() > 0 || b.devWriting {
		b.state = stateDraining
		b.flushSerial()
		return
	}
	b.finishDrain()
}

// finishDrain leaves the post-session state: back to accepting, or
// done entirely when there is no listener to fall back to.
func (b *Bridge) finishDrain() {
	if b.ln == nil {
		b.state = stateClosed
		return
	}
	b.state = stateListening
}

func (b *Bridge) closeSession() {
	b.sess.close()
	b.sess = nil
	b.opts.Metrics.SessionClosed()
}

// shutdown is the orderly-teardown path: pending data is discarded,
// not flushed.
func (b *Bridge) shutdown() {
	log.Debug("shutting down")
	b.toNet.Reset()
	b.toSerial.Reset()
	if b.sess != nil {
		log.WithField("session", b.sess.id).Infof("Disconnect: %s", b.sess.remote)
		b.closeSession()
	}
	b.state = stateClosed
	b.cause = nil
}

// ── Flushing ─────────────────────────────────────────────────────────

// flushNet hands the next pending chunk to the session writer. At
// most one write is in flight; the completion event advances the
// buffer.
func (b *Bridge) flushNet() {
	if b.sess == nil || b.netWriting || b.toNet.Len() == 0 {
		return
	}
	view := b.toNet.Peek(b.opts.BufferSize)
	chunk := b.sess.buffer()
	n := copy(chunk, view)
	b.sess.write(chunk[:n])
	b.netWriting = true
}

func (b *Bridge) flushSerial() {
	if b.devWriting || b.toSerial.Len() == 0 {
		return
	}
	view := b.toSerial.Peek(b.opts.BufferSize)
	chunk := b.dev.Buffer()
	n := copy(chunk, view)
	b.dev.Write(chunk[:n])
	b.devWriting = true
}

// ── Accept pump ──────────────────────────────────────────────────────

// acceptLoop feeds accepted connections to the owner loop. It exits
// when the listener closes or the loop stops listening to it.
func (b *Bridge) acceptLoop() {
	for {
		conn, err := b.ln.Accept()
		if err != nil {
			if sberr.Is(err, net.ErrClosed) {
				return
			}
			log.Warnf("accept: %v", err)
			select {
			case <-time.After(config.DefaultAcceptRetryDelay):
			case <-b.stop:
				return
			}
			continue
		}
		select {
		case b.conns <- conn:
		case <-b.stop:
			conn.Close()
			return
		}
	}
}

