package mq

import "time"

const RoutingKeyIntentResolved = "intent.resolved"

// IntentResolvedEvent is published after a request's dispatch completes.
// Publishing is best-effort and never affects the HTTP response.
type IntentResolvedEvent struct {
	TraceID    string    `json:"trace_id"`
	Intent     string    `json:"intent"`
	TaskID     string    `json:"task_id,omitempty"`
	Message    string    `json:"message"`
	Source     string    `json:"source"`
	OccurredAt time.Time `json:"occurred_at"`
}
