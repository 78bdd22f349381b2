package bridge

// session.go - one accepted client: the connection, its protocol
// state, and the pumps that turn blocking socket I/O into loop events.

import (
	"net"
	"sync"

	"github.com/google/uuid"

	"serbridge/internal/telnet"
	"serbridge/util"
)

// session binds a network connection to its per-client telnet state.
// The pump contract mirrors the serial endpoint's: read chunks arrive
// on data, one write is in flight at a time and acknowledged on done,
// failures land on errs. tel is nil on a raw relay link.
type session struct {
	id     string
	conn   net.Conn
	remote string
	tel    *telnet.Session
	acked  bool // character-mode acknowledgment seen, loop-owned
	pool   *util.BufPool

	data chan []byte
	done chan int
	errs chan error
	wq   chan []byte

	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func newSession(conn net.Conn, tel *telnet.Session, bufSize int) *session {
	s := &session{
		id:     uuid.New().String(),
		conn:   conn,
		remote: conn.RemoteAddr().String(),
		tel:    tel,
		pool:   util.NewBufPool(bufSize),
		data:   make(chan []byte),
		done:   make(chan int),
		errs:   make(chan error, 2),
		wq:     make(chan []byte, 1),
		stop:   make(chan struct{}),
	}
	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()
	return s
}

// buffer returns a pooled chunk for an upcoming write.
func (s *session) buffer() []byte { return s.pool.Get() }

// recycle returns a consumed data chunk to the pool.
func (s *session) recycle(buf []byte) { s.pool.Put(buf) }

// write hands one chunk to the writer pump. The loop keeps at most one
// write in flight and waits for done before sending the next.
func (s *session) write(chunk []byte) { s.wq <- chunk }

// close tears the connection down and waits for the pumps. Idempotent.
func (s *session) close() {
	s.once.Do(func() {
		close(s.stop)
		s.conn.Close() // unblocks pumps stuck in Read or Write
		s.wg.Wait()
	})
}

func (s *session) readLoop() {
	defer s.wg.Done()
	for {
		buf := s.pool.Get()
		n, err := s.conn.Read(buf)
		if n > 0 {
			select {
			case s.data <- buf[:n]:
			case <-s.stop:
				return
			}
		} else {
			s.pool.Put(buf)
		}
		if err != nil {
			s.report(err)
			return
		}
	}
}

func (s *session) writeLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stop:
			return
		case chunk := <-s.wq:
			written := 0
			for written < len(chunk) {
				n, err := s.conn.Write(chunk[written:])
				written += n
				if err != nil {
					s.report(err)
					return
				}
			}
			s.pool.Put(chunk)
			select {
			case s.done <- written:
			case <-s.stop:
				return
			}
		}
	}
}

func (s *session) report(err error) {
	select {
	case s.errs <- err:
	case <-s.stop:
	}
}
