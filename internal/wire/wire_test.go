package wire

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	*bytes.Reader
}

func (staticSource) SetReadDeadline(time.Time) error { return nil }

func newReader(b []byte, cfg Config) *Reader {
	return NewReader(staticSource{bytes.NewReader(b)}, cfg)
}

func TestEncodeDecodeBinaryRoundTrip(t *testing.T) {
	p := NewPacket(DefaultHeader, 0x07, []byte{1, 2, 3, 4}, FramingBinary)
	out, err := Encode(p, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, []byte{BinarySync[0], DefaultHeader, 0x07, 4, 1, 2, 3, 4}, out)

	r := newReader(out, DefaultConfig())
	got, err := r.ReadFrame(time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, p.Header, got.Header)
	assert.Equal(t, p.Type, got.Type)
	assert.Equal(t, p.Payload, got.Payload)
}

func TestBinaryRejectsUnknownHeader(t *testing.T) {
	frame := []byte{BinarySync[0], 0x99, 0x01, 0}
	cfg := DefaultConfig()
	cfg.AcceptedHeaders = map[byte]bool{DefaultHeader: true}

	r := newReader(frame, cfg)
	_, err := r.ReadFrame(time.Time{}, time.Time{})
	var fe *FrameError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, HeaderBad, fe.Code)
}

func TestBinaryPayloadTooLong(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPayloadLen = 2

	frame := []byte{BinarySync[0], DefaultHeader, 0x01, 3, 1, 2, 3}
	r := newReader(frame, cfg)
	_, err := r.ReadFrame(time.Time{}, time.Time{})
	var fe *FrameError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, LengthBad, fe.Code)
}

func TestEncodeDecodeAsciiRoundTrip(t *testing.T) {
	p := NewPacket(AsciiSync, 0x0A, []byte{0xDE, 0xAD}, FramingASCII)
	cfg := DefaultConfig()
	out, err := Encode(p, cfg)
	require.NoError(t, err)

	r := newReader(out, cfg)
	got, err := r.ReadFrame(time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, byte(AsciiSync), got.Header)
	assert.Equal(t, p.Type, got.Type)
	assert.Equal(t, p.Payload, got.Payload)
}

func TestAsciiBadChecksumRejected(t *testing.T) {
	cfg := DefaultConfig()
	line := string(AsciiSync) + "0adead*ff" + cfg.AsciiEOL
	r := newReader([]byte(line), cfg)
	_, err := r.ReadFrame(time.Time{}, time.Time{})
	var fe *FrameError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, ChecksumErr, fe.Code)
}

func TestAsciiNonHexIsEncodingError(t *testing.T) {
	cfg := DefaultConfig()
	line := string(AsciiSync) + "zz" + cfg.AsciiEOL
	r := newReader([]byte(line), cfg)
	_, err := r.ReadFrame(time.Time{}, time.Time{})
	var fe *FrameError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, EncodingErr, fe.Code)
}

func TestCursorLengthPrefixed(t *testing.T) {
	c := NewCursor([]byte{4, 'a', 'c', 'c', 't', 0xFF})
	b, err := c.LengthPrefixed()
	require.NoError(t, err)
	assert.Equal(t, "acct", string(b))
	assert.Equal(t, 1, c.Remaining())
}

func TestCursorShortRead(t *testing.T) {
	c := NewCursor([]byte{1, 2})
	_, err := c.U32()
	assert.ErrorIs(t, err, ErrShort)
}
