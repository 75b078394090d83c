package publisher

import (
	"context"
	"fmt"
	"sync"
)

// MockPublisher records published messages in memory
type MockPublisher struct {
	mu        sync.Mutex
	published []PublishedMessage
	err       error
	topicID   string
}

// PublishedMessage is a message recorded by MockPublisher
type PublishedMessage struct {
	Data       interface{}
	Attributes map[string]string
}

// NewMockPublisher creates a new MockPublisher
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{topicID: "mock-topic"}
}

// TopicID returns the mock topic name
func (m *MockPublisher) TopicID() string {
	return m.topicID
}

// Publish records the message and returns a sequential message ID. It fails
// with ctx's error when ctx is already done.
func (m *MockPublisher) Publish(ctx context.Context, data interface{}, attributes map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", classifyPublishError(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return "", m.err
	}

	m.published = append(m.published, PublishedMessage{
		Data:       data,
		Attributes: attributes,
	})

	return fmt.Sprintf("mock-message-%d", len(m.published)), nil
}

// Close implements the Publisher interface
func (m *MockPublisher) Close() error {
	return nil
}

// Published returns a copy of all published messages
func (m *MockPublisher) Published() []PublishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PublishedMessage(nil), m.published...)
}

// Reset clears all published messages and errors
func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = nil
	m.err = nil
}

// SetError sets an error to be returned by subsequent Publish calls
func (m *MockPublisher) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}
