package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/saviobatista/groundstation/internal/health"
	"github.com/saviobatista/groundstation/internal/types"
)

var (
	// ErrBusy is returned when a command is already outstanding
	ErrBusy = errors.New("command already in flight")
	// ErrNotPermitted is returned when the current health state disables the command
	ErrNotPermitted = errors.New("command not permitted in current state")
	// ErrRejected is returned when the vehicle answered with a non-success status
	ErrRejected = errors.New("command rejected")
)

// successMarkers are the status substrings the command endpoint uses to report success
var successMarkers = []string{"successfully", "initiated", "triggered"}

// HTTPDoer is the subset of *http.Client used by the dispatcher
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// StateFunc returns the vehicle health state at call time
type StateFunc func() types.HealthState

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithHTTPClient sets the client used for command requests
func WithHTTPClient(c HTTPDoer) Option {
	return func(d *Dispatcher) { d.client = c }
}

// WithLogger sets the dispatcher logger
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithSessionID tags every request with the owning session
func WithSessionID(id string) Option {
	return func(d *Dispatcher) { d.sessionID = id }
}

// WithAuthToken sends a bearer token with every command request
func WithAuthToken(token string) Option {
	return func(d *Dispatcher) { d.token = token }
}

// Dispatcher sends guarded commands to the vehicle's command endpoint. At
// most one command is outstanding at a time; further dispatches are refused
// rather than queued.
type Dispatcher struct {
	baseURL   string
	state     StateFunc
	client    HTTPDoer
	logger    *slog.Logger
	sessionID string
	token     string
	inFlight  atomic.Bool
	now       func() time.Time
}

// New creates a dispatcher for the command endpoint rooted at baseURL
func New(baseURL string, state StateFunc, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		state:   state,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  slog.New(slog.DiscardHandler),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// InFlight reports whether a command is outstanding
func (d *Dispatcher) InFlight() bool {
	return d.inFlight.Load()
}

// Dispatch issues a single command request. It returns ErrBusy if another
// command is outstanding and ErrNotPermitted if the current health state
// disables the command; neither makes a network call. A non-success answer
// returns the result together with ErrRejected. The in-flight flag is
// released on every return path.
func (d *Dispatcher) Dispatch(ctx context.Context, kind types.CommandKind) (types.CommandResult, error) {
	req := types.CommandRequest{
		ID:        uuid.New().String(),
		Kind:      kind,
		IssuedAt:  d.now(),
		SessionID: d.sessionID,
	}
	result := types.CommandResult{Request: req}

	if !d.inFlight.CompareAndSwap(false, true) {
		return d.fail(result, ErrBusy), ErrBusy
	}
	defer d.inFlight.Store(false)

	state := d.state()
	if !health.Permits(state, kind) {
		err := fmt.Errorf("%w: %s in state %s", ErrNotPermitted, kind, state)
		return d.fail(result, err), err
	}

	d.logger.Info("dispatching command",
		slog.String("command", string(kind)),
		slog.String("request_id", req.ID),
		slog.String("state", string(state)))

	status, err := d.post(ctx, kind)
	result.Status = status
	if err != nil {
		d.logger.Warn("command failed", slog.String("command", string(kind)), slog.Any("error", err))
		return d.fail(result, err), err
	}

	if !IsSuccess(status) {
		err := fmt.Errorf("%w: %s", ErrRejected, status)
		d.logger.Warn("command rejected", slog.String("command", string(kind)), slog.String("status", status))
		return d.fail(result, err), err
	}

	result.Success = true
	result.Finished = d.now()
	d.logger.Info("command succeeded", slog.String("command", string(kind)), slog.String("status", status))
	return result, nil
}

func (d *Dispatcher) fail(result types.CommandResult, err error) types.CommandResult {
	result.Success = false
	result.Error = err.Error()
	result.Finished = d.now()
	return result
}

// post sends the command and returns the endpoint's status text
func (d *Dispatcher) post(ctx context.Context, kind types.CommandKind) (string, error) {
	url := fmt.Sprintf("%s/api/%s", d.baseURL, kind.Path())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if d.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send %s: %w", kind, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("failed to read %s response: %w", kind, err)
	}

	var payload struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("invalid %s response (HTTP %d): %w", kind, resp.StatusCode, err)
	}

	status := payload.Status
	if status == "" {
		status = payload.Error
	}
	if resp.StatusCode >= 300 {
		return status, fmt.Errorf("%w: HTTP %d: %s", ErrRejected, resp.StatusCode, status)
	}
	return status, nil
}

// IsSuccess classifies a status text returned by the command endpoint
func IsSuccess(status string) bool {
	s := strings.ToLower(status)
	for _, marker := range successMarkers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}
