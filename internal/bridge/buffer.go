package bridge

// buffer.go - the pending-output buffer, one per forwarding direction.
// A plain FIFO byte queue: readers append at the tail, the writer pump
// consumes from the head in chunk-sized bites.

// compactAt bounds how much consumed head space a queue may carry
// before the live bytes are copied down.
const compactAt = 4096

// pending is a byte queue with head compaction. Not safe for
// concurrent use; it is owned by the bridge loop.
type pending struct {
	buf  []byte
	head int
}

// Append copies p onto the tail of the queue.
func (q *pending) Append(p []byte) {
	q.buf = append(q.buf, p...)
}

// Peek returns a view of up to max unconsumed bytes. The view stays
// valid until the next Advance or Reset; Append never moves it.
func (q *pending) Peek(max int) []byte {
	avail := len(q.buf) - q.head
	if avail > max {
		avail = max
	}
	return q.buf[q.head : q.head+avail]
}

// Advance drops n consumed bytes from the head.
func (q *pending) Advance(n int) {
	q.head += n
	if q.head >= len(q.buf) {
		q.buf = q.buf[:0]
		q.head = 0
		return
	}
	if q.head >= compactAt {
		q.buf = q.buf[:copy(q.buf, q.buf[q.head:])]
		q.head = 0
	}
}

// Len returns the number of unconsumed bytes.
func (q *pending) Len() int {
	return len(q.buf) - q.head
}

// Reset discards all content.
func (q *pending) Reset() {
	q.buf = q.buf[:0]
	q.head = 0
}
