package host

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/averros/ecoscen/internal/engine"
)

// closeGrace is how long Close waits for the host process to exit after
// the close request before killing it.
const closeGrace = 10 * time.Second

// Factory launches one engine host process per opened handle.
type Factory struct {
	// Cmd is the engine host executable.
	Cmd string
	// Args are passed to every invocation.
	Args []string
	// Logger defaults to slog.Default. Host stderr is relayed to it.
	Logger *slog.Logger
}

func (f *Factory) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}

// Open starts a host process and loads the model into it.
func (f *Factory) Open(ctx context.Context, modelPath string) (engine.Engine, error) {
	cmd := exec.CommandContext(ctx, f.Cmd, f.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("host stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("host stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("host stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start engine host %s: %w", f.Cmd, err)
	}

	log := f.logger().With("model", modelPath, "pid", cmd.Process.Pid)
	go relayStderr(stderr, log)

	h := &Host{w: stdin, r: stdout, cmd: cmd, log: log}
	resp, err := h.roundTrip(Request{Op: OpOpen, ModelPath: modelPath})
	if err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		return nil, fmt.Errorf("load model %s: %w", modelPath, err)
	}
	if resp.Error != "" {
		cmd.Process.Kill()
		cmd.Wait()
		return nil, &engine.EngineError{Op: engine.OpLoad, Status: resp.Error}
	}
	h.groups = resp.Groups
	h.timesteps = resp.Timesteps
	log.Debug("engine host ready", "groups", len(h.groups), "timesteps", h.timesteps)
	return h, nil
}

var _ engine.Factory = (*Factory)(nil)

// relayStderr forwards host diagnostics line by line.
func relayStderr(r io.Reader, log *slog.Logger) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		log.Debug("engine host", "stderr", sc.Text())
	}
}

// Host is an engine handle backed by a subprocess. Requests are
// strictly serialized; the protocol has no pipelining.
type Host struct {
	mu  sync.Mutex
	w   io.WriteCloser
	r   io.Reader
	cmd *exec.Cmd
	log *slog.Logger

	groups    []string
	timesteps int
	closed    bool
}

var _ engine.Engine = (*Host)(nil)

func (h *Host) roundTrip(req Request) (*Response, error) {
	if err := WriteMessage(h.w, req); err != nil {
		return nil, fmt.Errorf("%s: %w", req.Op, err)
	}
	var resp Response
	if err := ReadMessage(h.r, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", req.Op, err)
	}
	return &resp, nil
}

// call performs one locked round trip and converts host-reported
// failures into EngineErrors.
func (h *Host) call(op engine.Op, req Request) (*Response, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, &engine.EngineError{Op: op, Status: "handle closed"}
	}
	resp, err := h.roundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, &engine.EngineError{Op: op, Status: resp.Error}
	}
	return resp, nil
}

// SetParam implements engine.Engine.
func (h *Host) SetParam(id engine.ParamID, group int, value float64) error {
	_, err := h.call(engine.OpSetParam, Request{Op: OpSetParam, Param: string(id), Group: group, Value: value})
	return err
}

// GetParam implements engine.Engine.
func (h *Host) GetParam(id engine.ParamID, group int) (float64, error) {
	resp, err := h.call(engine.OpGetParam, Request{Op: OpGetParam, Param: string(id), Group: group})
	if err != nil {
		return 0, err
	}
	return resp.Value, nil
}

// SetPairParam implements engine.Engine.
func (h *Host) SetPairParam(id engine.ParamID, prey, pred int, value float64) error {
	_, err := h.call(engine.OpSetPair, Request{Op: OpSetPair, Param: string(id), Prey: prey, Pred: pred, Value: value})
	return err
}

// SetVector implements engine.Engine.
func (h *Host) SetVector(id engine.ParamID, values []float64) error {
	_, err := h.call(engine.OpSetVector, Request{Op: OpSetVector, Param: string(id), Values: values})
	return err
}

// VectorShape implements engine.Engine.
func (h *Host) VectorShape(id engine.ParamID) (int, error) {
	resp, err := h.call(engine.OpVectorShape, Request{Op: OpVectorShape, Param: string(id)})
	if err != nil {
		return 0, err
	}
	return resp.Index, nil
}

// AddForcingFunction implements engine.Engine.
func (h *Host) AddForcingFunction(name string, values []float64) (int, error) {
	resp, err := h.call(engine.OpAddForcing, Request{Op: OpAddForcing, Name: name, Values: values})
	if err != nil {
		return 0, err
	}
	return resp.Index, nil
}

// Run implements engine.Engine.
func (h *Host) Run(sub engine.SubModel) error {
	_, err := h.call(engine.OpRun, Request{Op: OpRun, Sub: sub.String()})
	return err
}

// Extract implements engine.Engine.
func (h *Host) Extract(variable string) (engine.Extract, error) {
	resp, err := h.call(engine.OpExtract, Request{Op: OpExtract, Variable: variable})
	if err != nil {
		return engine.Extract{}, err
	}
	ex := engine.Extract{Variable: variable, Shape: resp.Shape, Data: resp.Data}
	if len(ex.Data) != ex.Len() {
		return engine.Extract{}, &engine.EngineError{
			Op:     engine.OpExtract,
			Status: fmt.Sprintf("host returned %d values for shape %v", len(ex.Data), ex.Shape),
		}
	}
	return ex, nil
}

// Groups implements engine.Engine.
func (h *Host) Groups() []string {
	return append([]string(nil), h.groups...)
}

// Timesteps implements engine.Engine.
func (h *Host) Timesteps() int { return h.timesteps }

// Close asks the host to release the model and waits for the process to
// exit, killing it if it lingers.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	_, rtErr := h.roundTrip(Request{Op: OpClose})
	h.w.Close()

	if h.cmd == nil {
		return rtErr
	}
	done := make(chan error, 1)
	go func() { done <- h.cmd.Wait() }()
	select {
	case err := <-done:
		if rtErr != nil {
			return rtErr
		}
		return err
	case <-time.After(closeGrace):
		h.log.Warn("engine host did not exit, killing")
		h.cmd.Process.Kill()
		return <-done
	}
}
