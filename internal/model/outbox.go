package model

import (
	"encoding/json"
	"time"
)

// OutboxMessage is an event written in the same transaction as the state
// change that raised it and relayed to the broker afterwards.
type OutboxMessage struct {
	ID           string
	Topic        string
	AggregateKey string
	Payload      json.RawMessage
	Attempts     int
	LastError    string
	CreatedAt    time.Time
	PublishedAt  *time.Time
}
