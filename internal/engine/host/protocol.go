// Package host drives an engine host process over stdio. The simulation
// core is single-instance per process, so every concurrent handle gets
// its own subprocess; this package speaks the framed JSON protocol the
// host executable implements.
package host

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// MaxMessageSize is the maximum allowed message payload (16 MiB).
const MaxMessageSize = 16 << 20

// Request op names understood by the engine host process.
const (
	OpOpen        = "open"
	OpSetParam    = "set_param"
	OpGetParam    = "get_param"
	OpSetPair     = "set_pair"
	OpSetVector   = "set_vector"
	OpVectorShape = "vector_shape"
	OpAddForcing  = "add_forcing"
	OpRun         = "run"
	OpExtract     = "extract"
	OpClose       = "close"
)

// Request is the JSON payload sent to the engine host.
type Request struct {
	Op        string    `json:"op"`
	ModelPath string    `json:"model_path,omitempty"`
	Param     string    `json:"param,omitempty"`
	Group     int       `json:"group,omitempty"`
	Prey      int       `json:"prey,omitempty"`
	Pred      int       `json:"pred,omitempty"`
	Value     float64   `json:"value,omitempty"`
	Values    []float64 `json:"values,omitempty"`
	Name      string    `json:"name,omitempty"`
	Sub       string    `json:"sub,omitempty"`
	Variable  string    `json:"variable,omitempty"`
}

// Response is the JSON payload returned by the engine host. Error is
// set when the operation failed; the remaining fields are op-specific.
type Response struct {
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	Value     float64   `json:"value,omitempty"`
	Shape     []int     `json:"shape,omitempty"`
	Data      []float64 `json:"data,omitempty"`
	Index     int       `json:"index,omitempty"`
	Groups    []string  `json:"groups,omitempty"`
	Timesteps int       `json:"timesteps,omitempty"`
}

// WriteMessage writes a length-prefixed JSON message to w.
// The frame format is: 4-byte big-endian length prefix followed by the JSON payload.
func WriteMessage(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	length := uint32(len(data))
	if err := binary.Write(w, binary.BigEndian, length); err != nil {
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
		return fmt.Errorf("message size %d exceeds maximum %d", length, MaxMessageSize)
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
