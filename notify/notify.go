package notify

import (
	"context"
	"time"
)

type Type int

const (
	AdminNotification Type = iota
	AlarmNotification
)

func (nt Type) String() string {
	switch nt {
	case AdminNotification:
		return "Admin"
	case AlarmNotification:
		return "Alarm"
	default:
		return "Unknown"
	}
}

// Notification is a broadcast message published to a topic. Delivery is
// best-effort; subsystem operations never depend on the outcome.
type Notification struct {
	Timestamp time.Time
	Type      Type
	Topic     string
	Title     string
	Message   string
}

// Notifier defines the contract for publishing notifications.
// Implementations MUST be safe for concurrent use by multiple goroutines.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}
