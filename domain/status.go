package domain

// DeliveryStatus tracks the lifecycle of a message.
// Regular flow is sent -> delivered -> seen. Failed is absorbing.
type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusSeen      DeliveryStatus = "seen"
	StatusFailed    DeliveryStatus = "failed"
)

// CanTransition reports whether moving from s to next is a legal lifecycle step.
// Seen is only reachable from delivered, never straight from sent.
func (s DeliveryStatus) CanTransition(next DeliveryStatus) bool {
	switch s {
	case StatusSent:
		return next == StatusDelivered || next == StatusFailed
	case StatusDelivered:
		return next == StatusSeen || next == StatusFailed
	default:
		// seen is terminal, failed is absorbing
		return false
	}
}

func (s DeliveryStatus) Valid() bool {
	switch s {
	case StatusSent, StatusDelivered, StatusSeen, StatusFailed:
		return true
	}
	return false
}
