package services

import (
	"time"

	"github.com/sidingops/rakeserial/internal/notify"
)

// ReassignmentEvent tells connected clients that an indent now lives under another serial.
type ReassignmentEvent struct {
	Type           string    `json:"type"`
	OriginalSerial string    `json:"original_serial"`
	Serial         string    `json:"serial"`
	Indent         string    `json:"indent_number"`
	At             time.Time `json:"at"`
}

// Event types sent to clients.
const (
	EventTypeSerialReassigned = "serial_reassigned"
	EventTypeSplitShared      = "split_shared"
)

// EventPublisher broadcasts reassignment events.
type EventPublisher interface {
	Publish(ReassignmentEvent)
}

// NotificationSender queues a notification without waiting for delivery.
type NotificationSender interface {
	Send(notify.Message)
}

type nopPublisher struct{}

func (nopPublisher) Publish(ReassignmentEvent) {}

type nopSender struct{}

func (nopSender) Send(notify.Message) {}
