package command

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/saviobatista/groundstation/internal/testutils"
	"github.com/saviobatista/groundstation/internal/types"
)

// commandServer answers every command with the given status and counts requests
func commandServer(t *testing.T, code int, body string, hits *atomic.Int32, paths chan<- string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if paths != nil {
			paths <- r.URL.Path
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func fixedState(s types.HealthState) StateFunc {
	return func() types.HealthState { return s }
}

func TestDispatch_Success(t *testing.T) {
	var hits atomic.Int32
	paths := make(chan string, 1)
	srv := commandServer(t, http.StatusOK, `{"status":"armed successfully"}`, &hits, paths)

	d := New(srv.URL, fixedState(types.StateConnected), WithSessionID("session-1"))
	res, err := d.Dispatch(context.Background(), types.CommandArm)
	if err != nil {
		t.Fatalf("Dispatch() failed: %v", err)
	}
	if !res.Success || res.Status != "armed successfully" {
		t.Errorf("unexpected result %+v", res)
	}
	if res.Request.SessionID != "session-1" || res.Request.ID == "" {
		t.Errorf("request not tagged: %+v", res.Request)
	}
	if got := <-paths; got != "/api/arm" {
		t.Errorf("Expected /api/arm, got %s", got)
	}
	if d.InFlight() {
		t.Error("in-flight flag not cleared after success")
	}
}

func TestDispatch_ReturnToLaunchPath(t *testing.T) {
	var hits atomic.Int32
	paths := make(chan string, 1)
	srv := commandServer(t, http.StatusOK, `{"status":"RTL initiated"}`, &hits, paths)

	d := New(srv.URL+"/", fixedState(types.StateFlying))
	if _, err := d.Dispatch(context.Background(), types.CommandReturnToLaunch); err != nil {
		t.Fatalf("Dispatch() failed: %v", err)
	}
	if got := <-paths; got != "/api/rtl" {
		t.Errorf("Expected /api/rtl, got %s", got)
	}
}

func TestDispatch_NotPermitted(t *testing.T) {
	var hits atomic.Int32
	srv := commandServer(t, http.StatusOK, `{"status":"takeoff initiated"}`, &hits, nil)

	d := New(srv.URL, fixedState(types.StateFlying))
	res, err := d.Dispatch(context.Background(), types.CommandTakeoff)
	if !errors.Is(err, ErrNotPermitted) {
		t.Fatalf("Expected ErrNotPermitted, got %v", err)
	}
	if res.Success || res.Error == "" {
		t.Errorf("unexpected result %+v", res)
	}
	if hits.Load() != 0 {
		t.Errorf("Expected no network call, got %d", hits.Load())
	}
	if d.InFlight() {
		t.Error("in-flight flag not cleared after refusal")
	}
}

func TestDispatch_UsesStateAtCallTime(t *testing.T) {
	var hits atomic.Int32
	srv := commandServer(t, http.StatusOK, `{"status":"landing initiated"}`, &hits, nil)

	state := types.StateArmed
	d := New(srv.URL, func() types.HealthState { return state })

	if _, err := d.Dispatch(context.Background(), types.CommandLand); !errors.Is(err, ErrNotPermitted) {
		t.Fatalf("Expected ErrNotPermitted while armed, got %v", err)
	}
	state = types.StateOffboard
	if _, err := d.Dispatch(context.Background(), types.CommandLand); err != nil {
		t.Fatalf("Expected land to be permitted in offboard, got %v", err)
	}
}

func TestDispatch_Rejected(t *testing.T) {
	tests := []struct {
		name string
		code int
		body string
	}{
		{"failure status", http.StatusOK, `{"status":"arming failed: no GPS"}`},
		{"http error with status", http.StatusInternalServerError, `{"status":"arm triggered"}`},
		{"http error with error field", http.StatusBadRequest, `{"error":"vehicle not connected"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := commandServer(t, tt.code, tt.body, &hits, nil)

			d := New(srv.URL, fixedState(types.StateDisarmed))
			res, err := d.Dispatch(context.Background(), types.CommandArm)
			if !errors.Is(err, ErrRejected) {
				t.Fatalf("Expected ErrRejected, got %v", err)
			}
			if res.Success {
				t.Error("rejected command reported success")
			}
			if hits.Load() != 1 {
				t.Errorf("Expected exactly one request, got %d", hits.Load())
			}
			if d.InFlight() {
				t.Error("in-flight flag not cleared after rejection")
			}
		})
	}
}

func TestDispatch_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	d := New(url, fixedState(types.StateArmed))
	res, err := d.Dispatch(context.Background(), types.CommandTakeoff)
	if err == nil {
		t.Fatal("Expected network error")
	}
	if errors.Is(err, ErrRejected) || errors.Is(err, ErrBusy) {
		t.Errorf("network failure misclassified: %v", err)
	}
	if res.Success || res.Error == "" {
		t.Errorf("unexpected result %+v", res)
	}
	if d.InFlight() {
		t.Error("in-flight flag not cleared after network failure")
	}
}

func TestDispatch_InvalidResponse(t *testing.T) {
	var hits atomic.Int32
	srv := commandServer(t, http.StatusOK, `<html>ok</html>`, &hits, nil)

	d := New(srv.URL, fixedState(types.StateFlying))
	if _, err := d.Dispatch(context.Background(), types.CommandLand); err == nil {
		t.Error("Expected error for non-JSON response")
	}
	if d.InFlight() {
		t.Error("in-flight flag not cleared")
	}
}

func TestDispatch_BusyRefusesSecondRequest(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		fmt.Fprint(w, `{"status":"disarmed successfully"}`)
	}))
	defer srv.Close()

	d := New(srv.URL, fixedState(types.StateArmed))

	done := make(chan error, 1)
	go func() {
		_, err := d.Dispatch(context.Background(), types.CommandDisarm)
		done <- err
	}()

	if err := testutils.WaitForCondition(func() bool { return hits.Load() == 1 }, 2*time.Second); err != nil {
		t.Fatalf("first dispatch never reached the server: %v", err)
	}
	if !d.InFlight() {
		t.Error("Expected in-flight flag while first command is outstanding")
	}

	for i := 0; i < 3; i++ {
		if _, err := d.Dispatch(context.Background(), types.CommandTakeoff); !errors.Is(err, ErrBusy) {
			t.Errorf("Expected ErrBusy, got %v", err)
		}
	}
	if hits.Load() != 1 {
		t.Errorf("Expected one outbound request, got %d", hits.Load())
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first dispatch failed: %v", err)
	}
	if d.InFlight() {
		t.Error("in-flight flag not cleared")
	}

	// The operator can retry manually once the first command resolved.
	if _, err := d.Dispatch(context.Background(), types.CommandDisarm); err != nil {
		t.Errorf("retry after completion failed: %v", err)
	}
	if hits.Load() != 2 {
		t.Errorf("Expected two requests after retry, got %d", hits.Load())
	}
}

func TestDispatch_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	d := New(srv.URL, fixedState(types.StateFlying))
	if _, err := d.Dispatch(ctx, types.CommandLand); err == nil {
		t.Error("Expected error on timeout")
	}
	if d.InFlight() {
		t.Error("in-flight flag not cleared after timeout")
	}
}

func TestDispatch_SendsAuthToken(t *testing.T) {
	auth := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth <- r.Header.Get("Authorization")
		fmt.Fprint(w, `{"status":"armed successfully"}`)
	}))
	defer srv.Close()

	d := New(srv.URL, fixedState(types.StateDisarmed), WithAuthToken("s3cret"))
	if _, err := d.Dispatch(context.Background(), types.CommandArm); err != nil {
		t.Fatalf("Dispatch() failed: %v", err)
	}
	if got := <-auth; got != "Bearer s3cret" {
		t.Errorf("Expected bearer token, got %q", got)
	}
}

func TestIsSuccess(t *testing.T) {
	tests := map[string]bool{
		"armed successfully":      true,
		"Takeoff initiated":       true,
		"RTL triggered":           true,
		"Landing INITIATED":       true,
		"arm failed":              false,
		"":                        false,
		"success":                 false,
		"command not acknowledged": false,
	}
	for status, want := range tests {
		if got := IsSuccess(status); got != want {
			t.Errorf("IsSuccess(%q) = %v, want %v", status, got, want)
		}
	}
}
