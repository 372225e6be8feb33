package wire

import (
	"errors"
	"fmt"
)

// FrameErrorCode enumerates the ways reading or decoding a frame can fail.
// Each value maps 1:1 to an on-wire nack code (spec.md §7); the mapping
// itself lives in the dmtp package (FromFrameError), which owns the nack
// codes.
type FrameErrorCode int

const (
	HeaderBad FrameErrorCode = iota
	TypeBad
	LengthBad
	PayloadBad
	EncodingErr
	ChecksumErr
)

func (c FrameErrorCode) String() string {
	switch c {
	case HeaderBad:
		return "HEADER_BAD"
	case TypeBad:
		return "TYPE_BAD"
	case LengthBad:
		return "LENGTH_BAD"
	case PayloadBad:
		return "PAYLOAD_BAD"
	case EncodingErr:
		return "ENCODING_ERR"
	case ChecksumErr:
		return "CHECKSUM_ERR"
	default:
		return fmt.Sprintf("FrameErrorCode(%d)", int(c))
	}
}

// FrameError reports a framing/decoding failure together with the code the
// session state machine needs to pick the matching nack.
type FrameError struct {
	Code FrameErrorCode
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code.String()
}

func (e *FrameError) Unwrap() error { return e.Err }

func newFrameError(code FrameErrorCode, err error) *FrameError {
	return &FrameError{Code: code, Err: err}
}

// ErrTimeout is returned by ReadFrame when the idle or packet deadline
// elapses before a full frame could be read.
var ErrTimeout = errors.New("wire: read timeout")

// ErrEndOfStream is returned by ReadFrame once a UDP datagram's frames are
// exhausted, or a TCP peer has cleanly closed its write side between
// frames. It is not a protocol error.
var ErrEndOfStream = errors.New("wire: end of stream")

// ErrShort is returned by a Cursor reader when the payload does not have
// enough remaining bytes to satisfy the request. It is a data-level
// condition (occurs after a frame was already accepted), not a FrameError.
var ErrShort = errors.New("wire: payload too short")
