package pagehandler

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// MaxHeaderSize bounds the signed header frame of a transfer.
	MaxHeaderSize = 1 << 20
	// MaxPageFrameSize bounds one serialized page.
	MaxPageFrameSize = 16 << 20
)

// writeFrame writes u32be(len(data)) followed by data.
func writeFrame(w io.Writer, data []byte) error {
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(data)))
	if _, err := w.Write(length[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// readFrame reads one frame. It returns io.EOF only if the stream ends
// cleanly before a frame starts.
func readFrame(r io.Reader, maxSize uint32) ([]byte, error) {
	var length [4]byte
	if _, err := io.ReadFull(r, length[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("truncated frame header: %w", err)
		}
		return nil, err
	}
	size := binary.BigEndian.Uint32(length[:])
	if size > maxSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit of %d", size, maxSize)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("truncated frame: %w", err)
	}
	return data, nil
}
