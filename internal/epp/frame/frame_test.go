package frame

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	payloads := [][]byte{
		[]byte("<epp/>"),
		[]byte(""),
		bytes.Repeat([]byte("x"), MaxFrameSize-HeaderSize),
	}

	for _, payload := range payloads {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, payload))

		// Header carries total length including itself.
		require.GreaterOrEqual(t, buf.Len(), HeaderSize)
		total := binary.BigEndian.Uint32(buf.Bytes()[:HeaderSize])
		assert.Equal(t, uint32(len(payload)+HeaderSize), total)
		assert.Equal(t, len(payload)+HeaderSize, buf.Len())

		got, err := Read(&buf)
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	}
}

func TestReadEOFBeforeHeader(t *testing.T) {
	_, err := Read(bytes.NewReader(nil))
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadEOFMidHeader(t *testing.T) {
	_, err := Read(bytes.NewReader([]byte{0x00, 0x00}))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadEOFMidPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, []byte("<epp/>")))

	truncated := buf.Bytes()[:buf.Len()-2]
	_, err := Read(bytes.NewReader(truncated))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadRejectsOversizeFrame(t *testing.T) {
	oversize := bytes.Repeat([]byte("x"), MaxFrameSize)

	var buf bytes.Buffer
	var header [HeaderSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(oversize)+HeaderSize))
	buf.Write(header[:])
	buf.Write(oversize)
	require.NoError(t, Write(&buf, []byte("<hello/>")))

	_, err := Read(&buf)
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	// The oversize payload was drained, so the next frame is intact.
	next, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("<hello/>"), next)
}

func TestReadOversizeFrameTruncated(t *testing.T) {
	var buf bytes.Buffer
	var header [HeaderSize]byte
	binary.BigEndian.PutUint32(header[:], MaxFrameSize+1)
	buf.Write(header[:])
	buf.WriteString("short")

	// EOF while draining is a stream failure, not a clean rejection.
	_, err := Read(&buf)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrFrameTooLarge)
}

func TestReadRejectsUndersizeHeader(t *testing.T) {
	for _, total := range []uint32{0, 1, 3} {
		var header [HeaderSize]byte
		binary.BigEndian.PutUint32(header[:], total)

		_, err := Read(bytes.NewReader(header[:]))
		assert.ErrorIs(t, err, ErrFrameHeader)
	}
}

func TestReadHeaderOnlyFrame(t *testing.T) {
	var header [HeaderSize]byte
	binary.BigEndian.PutUint32(header[:], HeaderSize)

	payload, err := Read(bytes.NewReader(header[:]))
	require.NoError(t, err)
	assert.Empty(t, payload)
}

func TestWriteRejectsOversizePayload(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, bytes.Repeat([]byte("x"), MaxFrameSize))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
	assert.Zero(t, buf.Len())
}

// A frame declaring a short length followed by more bytes must leave the
// trailing bytes unread so the next frame can be parsed from the same
// stream.
func TestReadLeavesFollowingFrameIntact(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, []byte("<epp/>")))
	require.NoError(t, Write(&buf, []byte("<hello/>")))

	first, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("<epp/>"), first)

	second, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("<hello/>"), second)
}
