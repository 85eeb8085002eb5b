package session

// sendQueue is the FIFO of encoded frames awaiting write. It is owned by the
// session loop and never locked.
type sendQueue struct {
	items [][]byte
	bytes int
}

func (q *sendQueue) Push(b []byte) {
	q.items = append(q.items, b)
	q.bytes += len(b)
}

func (q *sendQueue) Front() []byte {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

func (q *sendQueue) Pop() {
	if len(q.items) == 0 {
		return
	}
	q.bytes -= len(q.items[0])
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
}

func (q *sendQueue) Len() int   { return len(q.items) }
func (q *sendQueue) Bytes() int { return q.bytes }

func (q *sendQueue) Clear() {
	q.items = nil
	q.bytes = 0
}
