package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	// HeaderLen is the fixed wire header size.
	HeaderLen = 8
	// MaxFrameLength caps total_length (header + payload) on decode.
	MaxFrameLength = 64 * 1024
	// MaxPayloadLength is the largest payload a decodable frame can carry.
	MaxPayloadLength = MaxFrameLength - HeaderLen
)

var (
	ErrShortHeader     = errors.New("frame: short fixed header")
	ErrShortPayload    = errors.New("frame: short payload")
	ErrInvalidLength   = errors.New("frame: total_length out of range")
	ErrPayloadTooLarge = errors.New("frame: payload exceeds length field")
)

// Header is the fixed wire header.
type Header struct {
	TotalLength uint32
	CommandID   CommandID
	Flags       uint8
	Reserved    uint8
}

// Valid reports whether the header satisfies HeaderLen <= TotalLength <= MaxFrameLength.
func (h Header) Valid() bool {
	return h.TotalLength >= HeaderLen && h.TotalLength <= MaxFrameLength
}

// PayloadLen is TotalLength minus the header. Only meaningful for valid headers.
func (h Header) PayloadLen() int {
	if h.TotalLength < HeaderLen {
		return 0
	}
	return int(h.TotalLength) - HeaderLen
}

// Frame is one complete wire message.
type Frame struct {
	Header  Header
	Payload []byte
}

// Command is a shorthand for f.Header.CommandID.
func (f Frame) Command() CommandID {
	return f.Header.CommandID
}

// PutHeader writes h into dst[:HeaderLen]. Flags and reserved are always
// emitted as zero.
func PutHeader(dst []byte, h Header) {
	_ = dst[HeaderLen-1]
	binary.BigEndian.PutUint32(dst[0:4], h.TotalLength)
	binary.BigEndian.PutUint16(dst[4:6], uint16(h.CommandID))
	dst[6] = 0
	dst[7] = 0
}

// EncodeHeader returns h as a fresh HeaderLen-byte slice.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderLen)
	PutHeader(buf, h)
	return buf
}

// DecodeHeader is the inverse byte-order transform. It does not validate
// TotalLength; that is the parser's job.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrShortHeader, len(b))
	}
	return Header{
		TotalLength: binary.BigEndian.Uint32(b[0:4]),
		CommandID:   CommandID(binary.BigEndian.Uint16(b[4:6])),
		Flags:       b[6],
		Reserved:    b[7],
	}, nil
}

// Encode builds header+payload into one contiguous buffer. It only fails when
// the payload cannot be described by the u32 length field; the decode-side
// MaxFrameLength cap is not enforced here.
func Encode(cmd CommandID, payload []byte) ([]byte, error) {
	if uint64(len(payload)) > math.MaxUint32-HeaderLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	total := HeaderLen + len(payload)
	buf := make([]byte, total)
	PutHeader(buf, Header{TotalLength: uint32(total), CommandID: cmd})
	copy(buf[HeaderLen:], payload)
	return buf, nil
}

// ReadFrame reads exactly one frame from a blocking reader. A clean EOF
// before any header byte is returned as io.EOF.
func ReadFrame(r io.Reader) (Frame, error) {
	var fixed [HeaderLen]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrShortHeader
		}
		return Frame{}, err
	}

	h, err := DecodeHeader(fixed[:])
	if err != nil {
		return Frame{}, err
	}
	if !h.Valid() {
		return Frame{}, fmt.Errorf("%w: %d", ErrInvalidLength, h.TotalLength)
	}

	payload := make([]byte, h.PayloadLen())
	if len(payload) > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return Frame{}, ErrShortPayload
			}
			return Frame{}, err
		}
	}
	return Frame{Header: h, Payload: payload}, nil
}

// WriteFrame encodes f with its command and payload and writes it in one call.
func WriteFrame(w io.Writer, f Frame) error {
	wire, err := Encode(f.Header.CommandID, f.Payload)
	if err != nil {
		return err
	}
	_, err = w.Write(wire)
	return err
}
