// Package worker executes dispatched jobs pulled off the durable WORKERS
// consumer and reports their lifecycle back over the status subjects
// (§4.9).
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/baker-street/brain/pkg/bus"
	"github.com/baker-street/brain/pkg/dispatcher"
	"github.com/baker-street/brain/pkg/logger"
	"github.com/baker-street/brain/pkg/metrics"
	"github.com/baker-street/brain/pkg/router"
	"github.com/baker-street/brain/pkg/telemetry"
)

// StatusMessage is the payload published on a job's per-job status
// subject (§4.2, §4.9).
type StatusMessage struct {
	JobID      string  `json:"jobId"`
	Status     string  `json:"status"`
	WorkerID   string  `json:"workerId"`
	Result     *string `json:"result,omitempty"`
	Error      *string `json:"error,omitempty"`
	DurationMs *int64  `json:"durationMs,omitempty"`
	TraceID    string  `json:"traceId,omitempty"`
}

// CommandInput is the job input shape for job type "command".
type CommandInput struct {
	Command string `json:"command"`
	Timeout int    `json:"timeoutSeconds"`
}

// HTTPInput is the job input shape for job type "http".
type HTTPInput struct {
	Method string         `json:"method"`
	URL    string         `json:"url"`
	Vars   map[string]any `json:"vars,omitempty"`
}

// maxCommandLength is the limit on a command string after stripping
// leading env-var assignments and a leading absolute path (§4.9).
const maxCommandLength = 1024

// Config configures a Worker.
type Config struct {
	WorkerID        string
	AllowedBinaries []string
	CommandTimeout  time.Duration
	HTTPTimeout     time.Duration
}

// Worker pulls jobs off the durable WORKERS consumer and executes them
// (§4.9).
type Worker struct {
	bus    *bus.Bus
	router *router.Router
	cfg    Config
}

// New constructs a Worker.
func New(b *bus.Bus, r *router.Router, cfg Config) *Worker {
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 30 * time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	return &Worker{bus: b, router: r, cfg: cfg}
}

// Run consumes jobs until ctx is cancelled (§4.9).
func (w *Worker) Run(ctx context.Context) error {
	consumer, err := w.bus.WorkerConsumer(ctx)
	if err != nil {
		return err
	}

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		w.handle(ctx, msg)
	})
	if err != nil {
		return errors.Wrap(err, "failed to start consuming jobs")
	}
	defer consumeCtx.Stop()

	<-ctx.Done()
	return nil
}

func (w *Worker) handle(ctx context.Context, msg jetstream.Msg) {
	var job dispatcher.Dispatch
	if err := json.Unmarshal(msg.Data(), &job); err != nil {
		logger.G(ctx).WithError(err).Error("failed to decode job dispatch, dropping")
		_ = msg.Ack()
		return
	}

	jobCtx := otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(job.TraceContext))

	_ = telemetry.WithSpan(jobCtx, "worker.execute_job", func(jobCtx context.Context) error {
		traceID := trace.SpanContextFromContext(jobCtx).TraceID().String()

		w.publishStatus(ctx, job.JobID, StatusMessage{JobID: job.JobID, Status: "received", WorkerID: w.cfg.WorkerID, TraceID: traceID})
		w.publishStatus(ctx, job.JobID, StatusMessage{JobID: job.JobID, Status: "running", WorkerID: w.cfg.WorkerID, TraceID: traceID})

		t0 := time.Now()
		result, execErr := w.execute(jobCtx, job)
		elapsed := time.Since(t0)
		durationMs := elapsed.Milliseconds()
		metrics.JobDuration.WithLabelValues(string(job.Type)).Observe(elapsed.Seconds())

		if execErr != nil {
			errText := execErr.Error()
			logger.WithJob(ctx, job.JobID, string(job.Type)).WithError(execErr).Error("job execution failed")
			w.publishStatus(ctx, job.JobID, StatusMessage{
				JobID: job.JobID, Status: "failed", WorkerID: w.cfg.WorkerID,
				Error: &errText, DurationMs: &durationMs, TraceID: traceID,
			})
			metrics.JobsCompleted.WithLabelValues(string(job.Type), "failed").Inc()
			return execErr
		}

		w.publishStatus(ctx, job.JobID, StatusMessage{
			JobID: job.JobID, Status: "completed", WorkerID: w.cfg.WorkerID,
			Result: &result, DurationMs: &durationMs, TraceID: traceID,
		})
		metrics.JobsCompleted.WithLabelValues(string(job.Type), "completed").Inc()
		return nil
	})

	_ = msg.Ack()
}

func (w *Worker) execute(ctx context.Context, job dispatcher.Dispatch) (string, error) {
	switch job.Type {
	case "command":
		return w.executeCommand(ctx, job.Input)
	case "http":
		return w.executeHTTP(ctx, job.Input)
	case "agent":
		return w.executeAgent(ctx, job.Input)
	default:
		return "", errors.Errorf("unknown job type: %s", job.Type)
	}
}

// executeCommand runs a command job: the binary name must be in the
// configured allowlist and the command (after stripping leading
// env-var assignments and a leading absolute path) must be at most
// maxCommandLength characters (§4.9).
func (w *Worker) executeCommand(ctx context.Context, rawInput string) (string, error) {
	var input CommandInput
	if err := json.Unmarshal([]byte(rawInput), &input); err != nil {
		return "", errors.Wrap(err, "failed to decode command job input")
	}

	binary, args, err := w.validateCommand(input.Command)
	if err != nil {
		return "", err
	}

	timeout := w.cfg.CommandTimeout
	if input.Timeout > 0 {
		timeout = time.Duration(input.Timeout) * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", errors.Wrapf(err, "command failed: %s", stderr.String())
	}
	return stdout.String(), nil
}

func (w *Worker) validateCommand(command string) (string, []string, error) {
	if len(command) > maxCommandLength {
		return "", nil, errors.Errorf("command exceeds %d characters", maxCommandLength)
	}

	fields := strings.Fields(command)
	// Strip leading NAME=value env-var assignments.
	for len(fields) > 0 && isEnvAssignment(fields[0]) {
		fields = fields[1:]
	}
	if len(fields) == 0 {
		return "", nil, errors.New("empty command")
	}

	binary := fields[0]
	// Strip a leading absolute path, allowlist matches the base name.
	base := binary
	if idx := strings.LastIndex(binary, "/"); idx >= 0 {
		base = binary[idx+1:]
	}

	allowed := false
	for _, b := range w.cfg.AllowedBinaries {
		if b == base {
			allowed = true
			break
		}
	}
	if !allowed {
		return "", nil, errors.Errorf("binary %q is not in the allowlist", base)
	}

	return binary, fields[1:], nil
}

func isEnvAssignment(field string) bool {
	eq := strings.Index(field, "=")
	if eq <= 0 {
		return false
	}
	name := field[:eq]
	for _, r := range name {
		if !(r == '_' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

// executeHTTP runs an http job, retrying transient network failures
// (§4.9: method defaults to GET, body is JSON-encoded vars).
func (w *Worker) executeHTTP(ctx context.Context, rawInput string) (string, error) {
	var input HTTPInput
	if err := json.Unmarshal([]byte(rawInput), &input); err != nil {
		return "", errors.Wrap(err, "failed to decode http job input")
	}
	method := input.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if input.Vars != nil {
		encoded, err := json.Marshal(input.Vars)
		if err != nil {
			return "", errors.Wrap(err, "failed to marshal request vars")
		}
		body = bytes.NewReader(encoded)
	}

	client := &http.Client{Timeout: w.cfg.HTTPTimeout}

	var result string
	err := retry.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, method, input.URL, body)
		if err != nil {
			return retry.Unrecoverable(err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		result = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, respBody)
		return nil
	}, retry.Attempts(3), retry.Context(ctx))

	return result, errors.Wrap(err, "http job failed")
}

// executeAgent runs an agent job by invoking the worker-role model
// directly, bypassing the conversational agent loop (§4.9).
func (w *Worker) executeAgent(ctx context.Context, jobText string) (string, error) {
	resp, err := w.router.Chat(ctx, router.ChatParams{
		Role:      "worker",
		Messages:  []router.Message{router.TextMessage("user", jobText)},
		MaxTokens: 1024,
	})
	if err != nil {
		return "", errors.Wrap(err, "worker agent call failed")
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == router.BlockText {
			text.WriteString(block.Text)
		}
	}
	return text.String(), nil
}

func (w *Worker) publishStatus(ctx context.Context, jobID string, status StatusMessage) {
	payload, err := json.Marshal(status)
	if err != nil {
		logger.G(ctx).WithError(err).Error("failed to marshal job status")
		return
	}
	if err := w.bus.PublishStatus(ctx, jobID, payload); err != nil {
		logger.G(ctx).WithError(err).Error("failed to publish job status")
	}
}
