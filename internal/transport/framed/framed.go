package framed

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/rocketscienceinc/scribbo-backend/internal/protocol"
)

const (
	// MaxMessageSize is the largest payload accepted in either direction.
	MaxMessageSize = 4096

	headerSize = 4
)

var (
	ErrMessageTooLarge  = errors.New("message too large")
	ErrConnectionClosed = errors.New("connection closed")
	ErrMalformedMessage = errors.New("malformed message")
)

// WriteFrame - writes payload prefixed with its 4-byte big-endian length.
// Partial writes are retried until the whole frame is out or the writer fails.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(payload))
	}

	frame := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[headerSize:], payload)

	for written := 0; written < len(frame); {
		n, err := w.Write(frame[written:])
		if err != nil {
			return fmt.Errorf("failed to write frame: %w", err)
		}

		if n == 0 {
			return fmt.Errorf("failed to write frame: %w", io.ErrShortWrite)
		}

		written += n
	}

	return nil
}

// ReadFrame - reads one length-prefixed payload. The length is checked before any payload byte is read.
func ReadFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, readError(err)
	}

	size := binary.BigEndian.Uint32(header)
	if size > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, readError(err)
	}

	return payload, nil
}

func readError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %w", ErrConnectionClosed, err)
	}

	return fmt.Errorf("failed to read frame: %w", err)
}

// CheckSize - reports ErrMessageTooLarge when msg would not fit in one frame.
func CheckSize(msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	if len(data) > MaxMessageSize {
		return fmt.Errorf("%w: %s is %d bytes", ErrMessageTooLarge, msg.MessageType(), len(data))
	}

	return nil
}

// Send - encodes msg and writes it as one frame.
func Send(w io.Writer, msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	return WriteFrame(w, data)
}

// Receive - reads one frame and decodes it. Decoding failures wrap ErrMalformedMessage.
func Receive(r io.Reader) (protocol.Message, error) {
	data, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}

	msg, err := protocol.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	return msg, nil
}
