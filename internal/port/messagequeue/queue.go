// Package messagequeue defines the message queue port and the subjects the
// daily scheduler exchanges over it.
package messagequeue

import "context"

// Subjects used by the daily scheduler. Every subject lives under the
// scheduler.> wildcard so one stream captures all of them.
const (
	SubjectSchedulerRun       = "scheduler.run"
	SubjectSchedulerCarryOver = "scheduler.carryover"
	SubjectSchedulerDigest    = "scheduler.digest"
)

// DeadLetterSubject is where messages on subject land after exhausting
// retries or failing validation.
func DeadLetterSubject(subject string) string { return subject + ".dlq" }

// Handler processes one message. ctx carries the publisher's request and
// tenant IDs.
type Handler func(ctx context.Context, subject string, data []byte) error

// Publisher is the side the notification service needs.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Queue is a durable publish/subscribe transport.
type Queue interface {
	Publisher

	// Subscribe registers handler on subject. A handler error triggers a
	// redelivery until retries run out, then the dead-letter subject.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain finishes in-flight handlers before closing.
	Drain() error
	Close() error
	IsConnected() bool
}
