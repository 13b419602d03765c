// Package event produces and consumes directory change notifications.
//
// Mutations emit a ChangeEvent to the lifecycle topic, keyed by user id so
// per-user ordering holds. The notification topic carries unkeyed
// caller-supplied plain strings. Delivery is at-least-once; consumers
// acknowledge manually and tolerate duplicates.
package event

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	// TopicLifecycle carries per-user change events keyed by user id.
	TopicLifecycle = "user-events"
	// TopicNotifications carries unkeyed notification fan-out.
	TopicNotifications = "notifications"
)

// ChangeEvent is the wire envelope for one change notification. The id is
// unique per event, not per user.
type ChangeEvent struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Encode serializes the event for publishing.
func (e ChangeEvent) Encode() (string, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encode change event: %w", err)
	}
	return string(payload), nil
}

// DecodeChangeEvent parses one wire payload.
func DecodeChangeEvent(payload string) (ChangeEvent, error) {
	var event ChangeEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return ChangeEvent{}, fmt.Errorf("decode change event: %w", err)
	}
	return event, nil
}
