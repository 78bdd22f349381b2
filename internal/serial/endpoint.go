package serial

// endpoint.go - the serial endpoint and its I/O pumps. The pumps own
// every blocking call; the bridge loop only ever touches channels.

import (
	"sync"
	"time"

	"serbridge/config"
	sberr "serbridge/internal/errors"
	"serbridge/util"
)

// Endpoint is the bridge's handle on the open device. Read chunks
// arrive on Data; a write is handed over with Write and acknowledged
// on Done with its byte count. Any error on Errs is fatal: the device
// is gone or the handle went bad. Transient no-data polls never
// surface here.
//
// Data is unbuffered on purpose: at most one chunk sits between the
// port and the loop, which keeps the pending-buffer bound tight when
// the loop withdraws read interest.
type Endpoint struct {
	path string
	port port
	pool *util.BufPool

	data chan []byte
	done chan int
	errs chan error
	wq   chan []byte

	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// Open opens the device described by spec and starts the pumps.
// bufSize bounds each read chunk; poll bounds how long a blocking read
// may hide a shutdown request.
func Open(spec config.DeviceSpec, bufSize int, poll time.Duration) (*Endpoint, error) {
	p, err := openPort(spec.Path, modeFor(spec))
	if err != nil {
		return nil, sberr.WrapSerial("open", spec.Path, classify(err), err)
	}
	if err := p.SetReadTimeout(poll); err != nil {
		p.Close()
		return nil, sberr.WrapSerial("open", spec.Path, classify(err), err)
	}

	e := &Endpoint{
		path: spec.Path,
		port: p,
		pool: util.NewBufPool(bufSize),
		data: make(chan []byte),
		done: make(chan int),
		errs: make(chan error, 2),
		wq:   make(chan []byte, 1),
		stop: make(chan struct{}),
	}
	e.wg.Add(2)
	go e.readLoop()
	go e.writeLoop()
	return e, nil
}

func (e *Endpoint) Data() <-chan []byte { return e.data }
func (e *Endpoint) Done() <-chan int    { return e.done }
func (e *Endpoint) Errs() <-chan error  { return e.errs }
func (e *Endpoint) Path() string        { return e.path }

// Buffer returns a pooled chunk buffer for an upcoming Write.
func (e *Endpoint) Buffer() []byte { return e.pool.Get() }

// Recycle returns a consumed Data chunk (or an unused Buffer) to the
// pool.
func (e *Endpoint) Recycle(buf []byte) { e.pool.Put(buf) }

// Write hands one chunk to the writer pump. The caller keeps at most
// one write in flight and waits for Done before sending the next; the
// chunk is recycled internally once written.
func (e *Endpoint) Write(chunk []byte) { e.wq <- chunk }

// Close stops the pumps and releases the device. Safe to call more
// than once and after a pump failure.
func (e *Endpoint) Close() error {
	var err error
	e.once.Do(func() {
		close(e.stop)
		err = e.port.Close() // unblocks a pump stuck in Read or Write
		e.wg.Wait()
	})
	return err
}

// readLoop polls the port and forwards chunks to the loop. A zero-byte
// read with a nil error is the poll timeout, meaning no data ready.
func (e *Endpoint) readLoop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stop:
			return
		default:
		}

		buf := e.pool.Get()
		n, err := e.port.Read(buf)
		if n > 0 {
			select {
			case e.data <- buf[:n]:
			case <-e.stop:
				return
			}
		} else {
			e.pool.Put(buf)
		}
		if err != nil {
			e.report(sberr.WrapSerial("read", e.path, ioCode(err), err))
			return
		}
	}
}

func (e *Endpoint) writeLoop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stop:
			return
		case chunk := <-e.wq:
			written := 0
			for written < len(chunk) {
				n, err := e.port.Write(chunk[written:])
				written += n
				if err != nil {
					e.report(sberr.WrapSerial("write", e.path, ioCode(err), err))
					return
				}
			}
			e.pool.Put(chunk)
			select {
			case e.done <- written:
			case <-e.stop:
				return
			}
		}
	}
}

func (e *Endpoint) report(err error) {
	select {
	case e.errs <- err:
	case <-e.stop:
	}
}
