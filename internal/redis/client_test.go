package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// mockRedisClient is an in-memory RedisClientInterface
type mockRedisClient struct {
	mu       sync.Mutex
	data     map[string]string
	ttls     map[string]time.Duration
	setError error
	getError error
	closed   bool
}

func newMockRedisClient() *mockRedisClient {
	return &mockRedisClient{
		data: make(map[string]string),
		ttls: make(map[string]time.Duration),
	}
}

func (m *mockRedisClient) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setError != nil {
		return redis.NewStatusResult("", m.setError)
	}
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	default:
		m.data[key] = fmt.Sprint(v)
	}
	m.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (m *mockRedisClient) Get(ctx context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getError != nil {
		return redis.NewStringResult("", m.getError)
	}
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockRedisClient) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := m.data[k]; ok {
			delete(m.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (m *mockRedisClient) Close() error {
	m.closed = true
	return nil
}

type testSnapshot struct {
	SessionID string  `json:"session_id"`
	Version   uint64  `json:"version"`
	Battery   float64 `json:"battery"`
}

func TestNew_InvalidAddress(t *testing.T) {
	for _, addr := range []string{"invalid:address:12345", "redis://bad host:1/0"} {
		client, err := New(addr)
		if err == nil {
			t.Errorf("New(%q) should fail", addr)
			client.Close()
			continue
		}
		if client != nil {
			t.Error("New() should return nil client on error")
		}
	}
}

func TestClient_Close(t *testing.T) {
	// Close without a connection is a no-op
	if err := (&Client{}).Close(); err != nil {
		t.Errorf("Close() on empty client failed: %v", err)
	}

	mock := newMockRedisClient()
	if err := NewWithClient(mock).Close(); err != nil || !mock.closed {
		t.Error("Close() did not close the underlying client")
	}
}

func TestSnapshotKey(t *testing.T) {
	if got := SnapshotKey("abc"); got != "session:abc:snapshot" {
		t.Errorf("SnapshotKey() = %s", got)
	}
}

func TestClient_StoreAndGetSnapshot(t *testing.T) {
	mock := newMockRedisClient()
	client := NewWithClient(mock)
	ctx := context.Background()

	snap := testSnapshot{SessionID: "s1", Version: 7, Battery: 64.5}
	if err := client.StoreSnapshot(ctx, "s1", snap, time.Hour); err != nil {
		t.Fatalf("StoreSnapshot() failed: %v", err)
	}
	if mock.ttls[SnapshotKey("s1")] != time.Hour {
		t.Errorf("Expected 1h TTL, got %s", mock.ttls[SnapshotKey("s1")])
	}

	var got testSnapshot
	found, err := client.GetSnapshot(ctx, "s1", &got)
	if err != nil || !found {
		t.Fatalf("GetSnapshot() = %v, %v", found, err)
	}
	if got != snap {
		t.Errorf("GetSnapshot() = %+v, want %+v", got, snap)
	}

	if err := client.DeleteSnapshot(ctx, "s1"); err != nil {
		t.Fatalf("DeleteSnapshot() failed: %v", err)
	}
	found, err = client.GetSnapshot(ctx, "s1", &got)
	if err != nil || found {
		t.Errorf("Expected missing snapshot after delete, got %v, %v", found, err)
	}
}

func TestClient_GetSnapshot_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid JSON", func(t *testing.T) {
		mock := newMockRedisClient()
		mock.data[SnapshotKey("s1")] = "{not json"
		var got testSnapshot
		if _, err := NewWithClient(mock).GetSnapshot(ctx, "s1", &got); err == nil {
			t.Error("Expected unmarshal error")
		}
	})

	t.Run("connection error", func(t *testing.T) {
		mock := newMockRedisClient()
		mock.getError = errors.New("connection refused")
		var got testSnapshot
		if _, err := NewWithClient(mock).GetSnapshot(ctx, "s1", &got); err == nil {
			t.Error("Expected get error")
		}
	})

	t.Run("unmarshalable snapshot", func(t *testing.T) {
		mock := newMockRedisClient()
		if err := NewWithClient(mock).StoreSnapshot(ctx, "s1", make(chan int), time.Hour); err == nil {
			t.Error("Expected marshal error")
		}
	})
}

func TestClient_ActiveSession(t *testing.T) {
	mock := newMockRedisClient()
	client := NewWithClient(mock)
	ctx := context.Background()

	id, err := client.GetActiveSession(ctx)
	if err != nil || id != "" {
		t.Errorf("Expected no active session, got %q, %v", id, err)
	}

	if err := client.SetActiveSession(ctx, "s2", time.Hour); err != nil {
		t.Fatalf("SetActiveSession() failed: %v", err)
	}
	id, err = client.GetActiveSession(ctx)
	if err != nil || id != "s2" {
		t.Errorf("GetActiveSession() = %q, %v; want s2", id, err)
	}

	mock.getError = errors.New("timeout")
	if _, err := client.GetActiveSession(ctx); err == nil {
		t.Error("Expected error")
	}
}
