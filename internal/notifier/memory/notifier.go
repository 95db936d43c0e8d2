// Package memory records notifications in-process for dry runs and tests.
package memory

import (
	"context"
	"sync"
)

// Message captures one Notify call.
type Message struct {
	Subject string
	Body    string
}

// Notifier stores every message it receives.
type Notifier struct {
	mu       sync.RWMutex
	messages []Message
	err      error
}

// New returns an empty Notifier.
func New() *Notifier {
	return &Notifier{}
}

// FailWith makes subsequent Notify calls record the message and return err.
func (n *Notifier) FailWith(err error) {
	n.mu.Lock()
	n.err = err
	n.mu.Unlock()
}

// Notify records the message.
func (n *Notifier) Notify(_ context.Context, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, Message{Subject: subject, Body: body})
	return n.err
}

// Messages returns the recorded notifications.
func (n *Notifier) Messages() []Message {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]Message, len(n.messages))
	copy(out, n.messages)
	return out
}
