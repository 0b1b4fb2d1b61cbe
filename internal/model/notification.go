package model

import "time"

// Notification is a templated message produced by an automation rule.
type Notification struct {
	ID        int64      `json:"id"`
	UserID    int        `json:"userId"`
	EventType string     `json:"eventType"`
	Channel   string     `json:"channel"`
	Subject   string     `json:"subject"`
	Body      string     `json:"body"`
	CreatedAt time.Time  `json:"createdAt"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
}
