package incidents

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pulseguard/pulseguard/internal/core/sampler"
)

// maxCapturedOutput bounds how much command/response output lands in the
// execution journal.
const maxCapturedOutput = 8 * 1024

// ExecResult is the outcome of running one implementation.
type ExecResult struct {
	Success bool
	Output  string
	Err     string
}

// Executor runs response action implementations and their verification
// probes.
type Executor interface {
	Execute(ctx context.Context, impl *Implementation) ExecResult
	Verify(ctx context.Context, v *Verification) (bool, string)
}

// MetricReader exposes the latest snapshot for metric verification.
type MetricReader interface {
	Latest() (*sampler.Snapshot, bool)
}

// DefaultExecutor dispatches on the implementation variant: commands and
// scripts run as host processes, HTTP calls go through a shared client.
type DefaultExecutor struct {
	logger  *logrus.Logger
	client  *http.Client
	metrics MetricReader
}

// NewDefaultExecutor creates an executor. metrics may be nil; metric
// verifications then fail soft.
func NewDefaultExecutor(metrics MetricReader, logger *logrus.Logger) *DefaultExecutor {
	return &DefaultExecutor{
		logger:  logger,
		client:  &http.Client{Timeout: 30 * time.Second},
		metrics: metrics,
	}
}

// Execute runs the populated variant. The caller bounds ctx with the
// configured execution timeout.
func (e *DefaultExecutor) Execute(ctx context.Context, impl *Implementation) ExecResult {
	switch {
	case impl.Command != nil:
		return e.runCommand(ctx, impl.Command.Cmd, impl.Command.Args, impl.Command.WorkingDir)
	case impl.Script != nil:
		return e.runCommand(ctx, impl.Script.Path, impl.Script.Args, "")
	case impl.HTTPCall != nil:
		return e.runHTTP(ctx, impl.HTTPCall)
	default:
		return ExecResult{Err: "implementation has no variant"}
	}
}

func (e *DefaultExecutor) runCommand(ctx context.Context, name string, args []string, dir string) ExecResult {
	cmd := exec.CommandContext(ctx, name, args...)
	if dir != "" {
		cmd.Dir = dir
	}

	output, err := cmd.CombinedOutput()
	result := ExecResult{Output: truncate(string(output))}
	if err != nil {
		result.Err = err.Error()
		return result
	}
	result.Success = true
	return result
}

func (e *DefaultExecutor) runHTTP(ctx context.Context, call *HTTPCall) ExecResult {
	method := call.Method
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	if call.Body != "" {
		body = strings.NewReader(call.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, call.URL, body)
	if err != nil {
		return ExecResult{Err: fmt.Sprintf("failed to build request: %v", err)}
	}
	if call.Body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range call.Headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return ExecResult{Err: err.Error()}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxCapturedOutput))
	result := ExecResult{
		Output: fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(string(respBody))),
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		result.Success = true
	} else {
		result.Err = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	return result
}

// Verify probes the post-condition within the descriptor's timeout.
func (e *DefaultExecutor) Verify(ctx context.Context, v *Verification) (bool, string) {
	timeout := time.Duration(v.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	verifyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch v.Type {
	case "http":
		return e.verifyHTTP(verifyCtx, v)
	case "metric":
		return e.verifyMetric(v)
	default:
		return false, fmt.Sprintf("unknown verification type %q", v.Type)
	}
}

func (e *DefaultExecutor) verifyHTTP(ctx context.Context, v *Verification) (bool, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.URL, nil)
	if err != nil {
		return false, fmt.Sprintf("failed to build probe request: %v", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return false, fmt.Sprintf("probe failed: %v", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		return true, fmt.Sprintf("probe returned %d", resp.StatusCode)
	}
	return false, fmt.Sprintf("probe returned %d", resp.StatusCode)
}

func (e *DefaultExecutor) verifyMetric(v *Verification) (bool, string) {
	if e.metrics == nil {
		return false, "no metric source wired"
	}

	snap, ok := e.metrics.Latest()
	if !ok {
		return false, "no snapshot available yet"
	}

	value, ok := snap.Metric(v.Metric)
	if !ok {
		return false, fmt.Sprintf("metric %q not present in snapshot", v.Metric)
	}

	held := compareMetric(value, v.Operator, v.Threshold)
	return held, fmt.Sprintf("%s is %.2f (want %s %.2f)", v.Metric, value, v.Operator, v.Threshold)
}

func compareMetric(value float64, operator string, threshold float64) bool {
	switch operator {
	case ">":
		return value > threshold
	case ">=":
		return value >= threshold
	case "<":
		return value < threshold
	case "<=":
		return value <= threshold
	case "==":
		return value == threshold
	default:
		return false
	}
}

func truncate(s string) string {
	if len(s) <= maxCapturedOutput {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(s[:maxCapturedOutput]) + "... (truncated)"
}
