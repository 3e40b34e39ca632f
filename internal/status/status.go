// Package status implements the inbox the scanner and upload worker
// publish progress messages into. The presentation layer drains it;
// draining never blocks the producers beyond the append itself.
package status

import (
	"sync"
	"time"
)

// Message is one append-only status entry. LogID is zero when the
// message is not tied to a particular log record.
type Message struct {
	Text  string
	LogID int64
	At    time.Time
}

// Inbox is a thread-safe accumulator of status messages. Messages
// preserve publish order per producer.
type Inbox struct {
	mu   sync.Mutex
	msgs []Message
}

// NewInbox returns an empty inbox.
func NewInbox() *Inbox {
	return &Inbox{}
}

// Publish appends a message not tied to any log record.
func (i *Inbox) Publish(text string) {
	i.PublishLog(text, 0)
}

// PublishLog appends a message referencing the given log record.
func (i *Inbox) PublishLog(text string, logID int64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.msgs = append(i.msgs, Message{Text: text, LogID: logID, At: time.Now()})
}

// Drain returns all accumulated messages and clears the inbox.
func (i *Inbox) Drain() []Message {
	i.mu.Lock()
	defer i.mu.Unlock()
	msgs := i.msgs
	i.msgs = nil
	return msgs
}

// Len reports the number of undrained messages.
func (i *Inbox) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.msgs)
}
