// Package frame implements the EPP transport framing from RFC 5734 §4:
// every message is prefixed with a four-octet unsigned integer in network
// byte order carrying the total frame length, header included.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// HeaderSize is the size of the length prefix in octets.
const HeaderSize = 4

// MaxFrameSize bounds the total frame length. Oversize payloads are
// discarded without buffering so a bad header cannot trigger a large
// allocation.
const MaxFrameSize = 64 * 1024

var (
	// ErrFrameTooLarge is returned when the declared total length exceeds
	// MaxFrameSize. Read consumes the declared payload before returning it,
	// so the stream stays framed and the caller may keep reading.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")

	// ErrFrameHeader is returned when the declared total length is smaller
	// than the header itself.
	ErrFrameHeader = errors.New("invalid frame length header")
)

// Read reads one complete frame and returns its XML payload. Short reads
// are retried by io.ReadFull until the frame is complete; EOF before the
// first header octet is returned as io.EOF so callers can detect a clean
// client disconnect, while EOF mid-frame surfaces as ErrUnexpectedEOF and
// fails the session.
func Read(r io.Reader) ([]byte, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read frame header: %w", err)
	}

	total := binary.BigEndian.Uint32(header[:])
	if total < HeaderSize {
		return nil, ErrFrameHeader
	}
	if total > MaxFrameSize {
		// Drain the declared payload so the next header read starts on a
		// frame boundary and the session can continue after the rejection.
		if _, err := io.CopyN(io.Discard, r, int64(total-HeaderSize)); err != nil {
			return nil, fmt.Errorf("discard oversize frame: %w", err)
		}
		return nil, ErrFrameTooLarge
	}

	payload := make([]byte, total-HeaderSize)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	return payload, nil
}

// Write frames the payload and writes it with a single Write call so the
// header and payload cannot interleave with another writer on the same
// stream.
func Write(w io.Writer, payload []byte) error {
	total := len(payload) + HeaderSize
	if total > MaxFrameSize {
		return ErrFrameTooLarge
	}

	buf := make([]byte, total)
	binary.BigEndian.PutUint32(buf[:HeaderSize], uint32(total))
	copy(buf[HeaderSize:], payload)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
