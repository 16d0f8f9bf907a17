package model

// EventType tags events published on the fan-out topic.
type EventType string

const (
	// EventMessage carries a freshly persisted chat message.
	EventMessage EventType = "message"
	// EventPresence carries the full online user set after a change.
	EventPresence EventType = "presence"
)

// Event is the unit published to Kafka after a message is persisted or the
// online set changes. Every gateway instance consumes the topic; a gateway
// skips events it originated (it already delivered them locally).
type Event struct {
	Type EventType `json:"type"`

	// OriginGatewayID identifies the gateway instance that published the
	// event so instances can skip their own.
	OriginGatewayID string `json:"originGatewayId"`

	// OriginConnID is the connection a message was submitted on. Fan-out
	// excludes it; the sender already holds the record via its ack.
	OriginConnID string `json:"originConnId,omitempty"`

	Message *Message `json:"message,omitempty"`

	// OnlineUserIDs is the complete online set (decimal user IDs) for
	// presence events; pushed as-is, not as a delta.
	OnlineUserIDs []string `json:"onlineUserIds,omitempty"`
}
