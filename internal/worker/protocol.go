package worker

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/seantiz/parcheck/internal/model"
)

// MaxMessageSize is the maximum allowed frame payload (16 MiB).
const MaxMessageSize = 16 << 20

// ErrMessageTooLarge is returned when a frame exceeds MaxMessageSize.
var ErrMessageTooLarge = errors.New("message exceeds maximum size")

// Request is the frame the coordinator sends to a worker on its stdin.
type Request struct {
	Index     int            `json:"index"`
	TaskID    string         `json:"task_id,omitempty"`
	Kind      string         `json:"kind"`
	Args      map[string]any `json:"args,omitempty"`
	ChildInit string         `json:"child_init,omitempty"`
	TempDir   string         `json:"tempdir,omitempty"`
}

// NewRequest builds the request for the task at index.
func NewRequest(index int, t model.Task, childInit, tempDir string) Request {
	return Request{
		Index:     index,
		TaskID:    t.ID,
		Kind:      t.Kind,
		Args:      t.Args,
		ChildInit: childInit,
		TempDir:   tempDir,
	}
}

// Response is the frame a worker writes on its result pipe after the task
// body returns normally.
type Response struct {
	Index  int          `json:"index"`
	Result model.Result `json:"result"`
}

// WriteMessage writes a length-prefixed JSON message to w.
// The frame format is: 4-byte big-endian length prefix followed by the JSON payload.
func WriteMessage(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if len(data) > MaxMessageSize {
		return fmt.Errorf("write message of %d bytes: %w", len(data), ErrMessageTooLarge)
	}

	if err := binary.Write(w, binary.BigEndian, uint32(len(data))); err != nil {
		return fmt.Errorf("write length prefix: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}

// ReadMessage reads a length-prefixed JSON message from r and decodes it into v.
func ReadMessage(r io.Reader, v any) error {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return fmt.Errorf("read length prefix: %w", err)
	}

	if length > MaxMessageSize {
		return fmt.Errorf("read message of %d bytes: %w", length, ErrMessageTooLarge)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return fmt.Errorf("read payload: %w", err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal message: %w", err)
	}
	return nil
}
