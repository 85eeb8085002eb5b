package frame

// ParseResult is the outcome of one Parser.TryParse call.
type ParseResult int

const (
	// ParseSuccess means one frame was extracted and consumed.
	ParseSuccess ParseResult = iota
	// ParseNeedMoreData means the buffer was left unchanged.
	ParseNeedMoreData
	// ParseInvalidHeader means the next header violated the length bounds and
	// the buffer was dropped. The stream cannot be resynchronized.
	ParseInvalidHeader
)

func (r ParseResult) String() string {
	switch r {
	case ParseSuccess:
		return "success"
	case ParseNeedMoreData:
		return "need_more_data"
	case ParseInvalidHeader:
		return "invalid_header"
	default:
		return "unknown"
	}
}

// Parser reassembles frames from an arbitrarily chunked byte stream.
// It holds no transport or session knowledge and is not safe for concurrent use.
type Parser struct {
	buf   []byte
	start int
}

// Push appends b to the accumulation buffer. No parsing happens here.
func (p *Parser) Push(b []byte) {
	if len(b) == 0 {
		return
	}
	if p.start > 0 && p.start >= len(p.buf)-p.start {
		// consumed prefix dominates; slide the tail down before growing
		n := copy(p.buf, p.buf[p.start:])
		p.buf = p.buf[:n]
		p.start = 0
	}
	p.buf = append(p.buf, b...)
}

// TryParse extracts at most one frame. Callers loop until the result is not
// ParseSuccess, since one read may carry several coalesced frames.
func (p *Parser) TryParse() (Frame, ParseResult) {
	data := p.buf[p.start:]
	if len(data) < HeaderLen {
		return Frame{}, ParseNeedMoreData
	}

	h, _ := DecodeHeader(data[:HeaderLen])
	if !h.Valid() {
		p.Reset()
		return Frame{}, ParseInvalidHeader
	}
	total := int(h.TotalLength)
	if len(data) < total {
		return Frame{}, ParseNeedMoreData
	}

	payload := make([]byte, total-HeaderLen)
	copy(payload, data[HeaderLen:total])

	p.start += total
	if p.start == len(p.buf) {
		p.buf = p.buf[:0]
		p.start = 0
	}
	return Frame{Header: h, Payload: payload}, ParseSuccess
}

// Buffered returns the number of unconsumed bytes.
func (p *Parser) Buffered() int {
	return len(p.buf) - p.start
}

// Reset drops everything buffered and releases the backing array.
func (p *Parser) Reset() {
	p.buf = nil
	p.start = 0
}
