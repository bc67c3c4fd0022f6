// stores.go
//
// Shared store doubles for auth.PendingStore, auth.ResultStore and auth.AuditLog.
// Imported by test files across packages to avoid duplicate mock definitions.
package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MGallo-Code/tether/internal/store"
)

// ErrInjected is the default infrastructure error returned by FlakyStore.
var ErrInjected = errors.New("injected store failure")

// FlakyStore wraps a real MemoryStore and fails the first N calls of each operation.
// Zero counters mean it behaves exactly like the wrapped store.
type FlakyStore struct {
	*store.MemoryStore

	mu sync.Mutex
	// Remaining failures per operation; decremented on each injected failure.
	PutFails        int
	TakeFails       int
	PutResultFails  int
	TakeResultFails int
	HealthErr       error

	// Err is returned for injected failures; nil means ErrInjected.
	Err error

	PutCalls  int
	TakeCalls int
}

// NewFlakyStore returns a FlakyStore over a fresh MemoryStore.
func NewFlakyStore() *FlakyStore {
	return &FlakyStore{MemoryStore: store.NewMemoryStore()}
}

// fail consumes one injected failure from *n, if any remain.
func (f *FlakyStore) fail(n *int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if *n <= 0 {
		return nil
	}
	*n--
	if f.Err != nil {
		return f.Err
	}
	return ErrInjected
}

func (f *FlakyStore) Put(ctx context.Context, key string, s *store.AuthSession, ttl time.Duration) error {
	f.mu.Lock()
	f.PutCalls++
	f.mu.Unlock()
	if err := f.fail(&f.PutFails); err != nil {
		return err
	}
	return f.MemoryStore.Put(ctx, key, s, ttl)
}

func (f *FlakyStore) TakeIfValid(ctx context.Context, key string) (*store.AuthSession, error) {
	f.mu.Lock()
	f.TakeCalls++
	f.mu.Unlock()
	if err := f.fail(&f.TakeFails); err != nil {
		return nil, err
	}
	return f.MemoryStore.TakeIfValid(ctx, key)
}

func (f *FlakyStore) PutResult(ctx context.Context, ticket string, payload []byte, ttl time.Duration) error {
	if err := f.fail(&f.PutResultFails); err != nil {
		return err
	}
	return f.MemoryStore.PutResult(ctx, ticket, payload, ttl)
}

func (f *FlakyStore) TakeResult(ctx context.Context, ticket string) ([]byte, error) {
	if err := f.fail(&f.TakeResultFails); err != nil {
		return nil, err
	}
	return f.MemoryStore.TakeResult(ctx, ticket)
}

func (f *FlakyStore) CheckHealth(ctx context.Context) error {
	if f.HealthErr != nil {
		return f.HealthErr
	}
	return f.MemoryStore.CheckHealth(ctx)
}

// MockAuditLog records every event it is given.
// Set InsertErr to simulate a failing database, HealthErr for /health.
type MockAuditLog struct {
	InsertErr error
	HealthErr error

	mu     sync.Mutex
	events []store.AuditEvent
}

func (m *MockAuditLog) InsertAuditEvent(_ context.Context, e store.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return m.InsertErr
}

func (m *MockAuditLog) CheckHealth(context.Context) error { return m.HealthErr }

// Events returns a copy of the recorded events in order.
func (m *MockAuditLog) Events() []store.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.AuditEvent(nil), m.events...)
}

// EventNames returns just the Event field of each recorded event.
func (m *MockAuditLog) EventNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.events))
	for i, e := range m.events {
		names[i] = e.Event
	}
	return names
}
