// Package scriptrunner executes the external calculation scripts.
package scriptrunner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrScriptFailed means the script ran and reported success=false.
	ErrScriptFailed = errors.New("calculation script reported failure")
	// ErrScriptUnavailable means the script could not be run or produced no result.
	ErrScriptUnavailable = errors.New("calculation script unavailable")
)

// Result is the JSON object a script prints at the end of its stdout.
type Result struct {
	Success bool           `json:"success"`
	Error   string         `json:"error,omitempty"`
	Values  map[string]any `json:"-"`
}

// Runner runs a named script for a project and run.
type Runner interface {
	Run(ctx context.Context, script, projectID, runID string) (*Result, error)
}

// Config holds subprocess settings.
type Config struct {
	PythonPath string
	ScriptsDir string
	Timeout    time.Duration
}

// PythonRunner runs scripts as `<python> <dir>/<script> <projectID> <runID>`.
type PythonRunner struct {
	cfg     Config
	breaker *CircuitBreaker
	logger  *slog.Logger
}

// NewPythonRunner creates a runner guarded by breaker.
func NewPythonRunner(cfg Config, breaker *CircuitBreaker, logger *slog.Logger) *PythonRunner {
	if cfg.PythonPath == "" {
		cfg.PythonPath = "python3"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &PythonRunner{cfg: cfg, breaker: breaker, logger: logger}
}

// Run executes the script and parses its result.
func (r *PythonRunner) Run(ctx context.Context, script, projectID, runID string) (*Result, error) {
	if script != filepath.Base(script) {
		return nil, fmt.Errorf("%w: invalid script name %q", ErrScriptUnavailable, script)
	}

	var res *Result
	call := func() error {
		var err error
		res, err = r.run(ctx, script, projectID, runID)
		return err
	}
	countable := func(err error) bool { return errors.Is(err, ErrScriptUnavailable) }

	var err error
	if r.breaker != nil {
		err = r.breaker.Execute(call, countable)
	} else {
		err = call()
	}
	if errors.Is(err, ErrCircuitOpen) {
		return nil, fmt.Errorf("%w: %v", ErrScriptUnavailable, err)
	}
	return res, err
}

func (r *PythonRunner) run(ctx context.Context, script, projectID, runID string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	// #nosec G204 -- script is a fixed basename chosen by the caller, ids are validated upstream
	cmd := exec.CommandContext(ctx, r.cfg.PythonPath, filepath.Join(r.cfg.ScriptsDir, script), projectID, runID)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	runErr := cmd.Run()
	if r.logger != nil {
		r.logger.Debug("Calculation script finished",
			slog.String("script", script),
			slog.String("run_id", runID),
			slog.Duration("elapsed", time.Since(start)),
			slog.Int("stderr_bytes", stderr.Len()))
	}

	res, parseErr := ParseResult(stdout.Bytes())
	if runErr != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s timed out after %s", ErrScriptUnavailable, script, r.cfg.Timeout)
		}
		// A script may exit non-zero after printing its own failure result.
		if parseErr == nil && !res.Success {
			return res, fmt.Errorf("%w: %s", ErrScriptFailed, res.Error)
		}
		return nil, fmt.Errorf("%w: %s: %v: %s", ErrScriptUnavailable, script, runErr, lastLine(stderr.Bytes()))
	}
	if parseErr != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrScriptUnavailable, script, parseErr)
	}
	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = "calculation failed"
		}
		return res, fmt.Errorf("%w: %s", ErrScriptFailed, msg)
	}
	return res, nil
}

// ParseResult decodes the JSON object a script prints last. Scripts may print progress
// before it and may pretty-print the object over several lines.
func ParseResult(stdout []byte) (*Result, error) {
	starts := objectStarts(stdout)
	for i := len(starts) - 1; i >= 0; i-- {
		values := map[string]any{}
		dec := json.NewDecoder(bytes.NewReader(stdout[starts[i]:]))
		dec.UseNumber()
		if err := dec.Decode(&values); err != nil {
			continue
		}
		res := &Result{Values: values}
		res.Success, _ = values["success"].(bool)
		res.Error, _ = values["error"].(string)
		delete(values, "success")
		delete(values, "error")
		return res, nil
	}
	return nil, errors.New("no JSON result in output")
}

// objectStarts returns the offsets of lines opening with '{' at column zero. Nested objects of
// indented output never start there. The first non-blank byte of the buffer is always a candidate.
func objectStarts(b []byte) []int {
	var starts []int
	if first := len(b) - len(bytes.TrimLeft(b, " \t\r\n")); first < len(b) && b[first] == '{' {
		starts = append(starts, first)
	}
	for off := 0; off < len(b); {
		nl := bytes.IndexByte(b[off:], '\n')
		if nl < 0 {
			break
		}
		off += nl + 1
		if off < len(b) && b[off] == '{' && (len(starts) == 0 || starts[len(starts)-1] != off) {
			starts = append(starts, off)
		}
	}
	return starts
}

func lastLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
