package domain

type MessageKind string

const (
	MessageKindUser   MessageKind = "message"
	MessageKindSystem MessageKind = "system"
)

type ConnectionID string

// UserRef is the sender identity attached to an envelope.
type UserRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// MessageBody is the mutable payload of an in-flight message.
// ID is assigned by the store on persistence.
type MessageBody struct {
	Kind    MessageKind    `json:"kind"`
	Content string         `json:"content"`
	Status  DeliveryStatus `json:"status"`
	ID      *int64         `json:"id,omitempty"`
}

// TargetSet is the resolved fanout target of one delivery.
// Exactly one of Channel or Connections is populated: room destinations
// resolve to a channel token, everything else to explicit connection ids.
type TargetSet struct {
	Channel     string
	Connections []ConnectionID
}

func (t TargetSet) Empty() bool {
	return t.Channel == "" && len(t.Connections) == 0
}

// Envelope represents one message in flight. It is created on an inbound
// send, mutated by the delivery coordinator (status, persisted id, targets)
// and discarded once the confirmation is emitted.
type Envelope struct {
	To      Destination
	Body    MessageBody
	From    UserRef
	Origin  ConnectionID // connection the send arrived on
	Targets TargetSet
}

func NewEnvelope(to Destination, kind MessageKind, content string, from UserRef, origin ConnectionID) *Envelope {
	return &Envelope{
		To:     to,
		Body:   MessageBody{Kind: kind, Content: content, Status: StatusSent},
		From:   from,
		Origin: origin,
	}
}

// MarkDelivered records the store-assigned id after a successful persist.
func (e *Envelope) MarkDelivered(messageID int64) {
	e.Body.ID = &messageID
	e.Body.Status = StatusDelivered
}

func (e *Envelope) MarkFailed() {
	e.Body.Status = StatusFailed
}
