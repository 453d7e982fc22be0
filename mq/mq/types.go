package mq

import (
	"time"

	"github.com/google/uuid"
)

type Action int

const (
	ActionRouteSaved Action = iota
	ActionScoreCredited
	ActionCreditPending
	ActionCnt
)

func (a Action) String() string {
	switch a {
	case ActionRouteSaved:
		return "route_saved"
	case ActionScoreCredited:
		return "score_credited"
	case ActionCreditPending:
		return "credit_pending"
	default:
		return "unknown"
	}
}

// Mode names a queue backend.
type Mode string

const (
	ModeGoChan    Mode = "go_chan"
	ModeRabbitMQ  Mode = "rabbitmq"
	ModeGCPPubSub Mode = "gcp_pub_sub"
)

// ScoreEvent describes one step of a route's life: saved, credited or
// waiting for a credit retry.
type ScoreEvent struct {
	UserID  uuid.UUID `json:"user_id"`
	RouteID uuid.UUID `json:"route_id"`
	Points  int64     `json:"points"`
	// Total is the user's score after the credit, zero when unknown.
	Total int64 `json:"total,omitempty"`
	// Attempt counts credit tries for pending events.
	Attempt int       `json:"attempt,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	At      time.Time `json:"at"`
}

func (e ScoreEvent) GetTopic() uuid.UUID {
	return e.UserID
}
