// Package notify carries operator-facing status messages.
package notify

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityInfo    Severity = "info"
)

type Notifier interface {
	Notify(severity Severity, message string)
}

type Message struct {
	Severity Severity  `json:"severity"`
	Text     string    `json:"text"`
	At       time.Time `json:"at"`
}

const defaultFeedSize = 50

// Feed logs every message and keeps the most recent ones until a client drains them.
type Feed struct {
	mu       sync.Mutex
	log      zerolog.Logger
	messages []Message
	limit    int
	now      func() time.Time
}

func NewFeed(log zerolog.Logger) *Feed {
	return &Feed{
		log:   log.With().Str("component", "notify").Logger(),
		limit: defaultFeedSize,
		now:   time.Now,
	}
}

func (f *Feed) Notify(severity Severity, message string) {
	event := f.log.Info()
	if severity == SeverityError {
		event = f.log.Warn()
	}
	event.Str("severity", string(severity)).Msg(message)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, Message{Severity: severity, Text: message, At: f.now().UTC()})
	if over := len(f.messages) - f.limit; over > 0 {
		f.messages = append([]Message(nil), f.messages[over:]...)
	}
}

// Drain returns pending messages oldest first and forgets them.
func (f *Feed) Drain() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.messages
	f.messages = nil
	if out == nil {
		return []Message{}
	}
	return out
}

// Discard drops messages. Useful where no operator is listening.
type Discard struct{}

func (Discard) Notify(Severity, string) {}
