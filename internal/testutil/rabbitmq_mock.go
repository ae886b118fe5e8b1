package testutil

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/WailSalutem-Health-Care/patient-registry/internal/messaging"
)

// PublishedEvent is one event accepted by MockPublisher.
type PublishedEvent struct {
	RoutingKey string
	Body       []byte
}

// MockPublisher is an in-memory messaging.PublisherInterface. When
// PublishErr is set every Publish fails and nothing is recorded.
type MockPublisher struct {
	PublishErr error

	mu     sync.Mutex
	events []PublishedEvent
	closed bool
}

var _ messaging.PublisherInterface = (*MockPublisher)(nil)

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(ctx context.Context, routingKey string, event interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.PublishErr != nil {
		return m.PublishErr
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	m.events = append(m.events, PublishedEvent{RoutingKey: routingKey, Body: body})
	return nil
}

func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockPublisher) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Events returns the events published under routingKey, oldest first.
func (m *MockPublisher) Events(routingKey string) []PublishedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []PublishedEvent
	for _, e := range m.events {
		if e.RoutingKey == routingKey {
			out = append(out, e)
		}
	}
	return out
}

// DecodeLast unmarshals the newest event for routingKey into dst.
func (m *MockPublisher) DecodeLast(t *testing.T, routingKey string, dst interface{}) {
	t.Helper()

	events := m.Events(routingKey)
	if len(events) == 0 {
		t.Fatalf("Expected an event with routing key '%s', found none", routingKey)
	}
	if err := json.Unmarshal(events[len(events)-1].Body, dst); err != nil {
		t.Fatalf("Failed to decode '%s' event: %v", routingKey, err)
	}
}

func (m *MockPublisher) AssertEventNotPublished(t *testing.T, routingKey string) {
	t.Helper()
	if n := len(m.Events(routingKey)); n > 0 {
		t.Errorf("Expected no events with routing key '%s', but found %d", routingKey, n)
	}
}

func (m *MockPublisher) AssertEventCount(t *testing.T, routingKey string, expected int) {
	t.Helper()
	if n := len(m.Events(routingKey)); n != expected {
		t.Errorf("Expected %d events with routing key '%s', got %d", expected, routingKey, n)
	}
}
