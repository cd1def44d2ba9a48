package amqp

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventGroupCreated        EventType = "group.created"
	EventGroupUpdated        EventType = "group.updated"
	EventGroupDeleted        EventType = "group.deleted"
	EventTransactionMarked   EventType = "transaction.marked"
	EventTransactionUnmarked EventType = "transaction.unmarked"
)

// GroupEvent announces a committed change to a recurring group or to a
// transaction's membership. Consumers re-read current state by id.
type GroupEvent struct {
	Type           EventType `json:"type"`
	GroupID        string    `json:"group_id,omitempty"`
	TransactionIDs []string  `json:"transaction_ids,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

func NewGroupEvent(eventType EventType, groupID string, transactionIDs ...string) GroupEvent {
	return GroupEvent{
		Type:           eventType,
		GroupID:        groupID,
		TransactionIDs: transactionIDs,
		Timestamp:      time.Now().UTC(),
	}
}

// RoutingKey is the topic key the event is published under.
func (e GroupEvent) RoutingKey(prefix string) string {
	if prefix == "" {
		return string(e.Type)
	}
	return prefix + "." + string(e.Type)
}

// ToJSON converts the message to JSON bytes
func (e GroupEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// GroupEventFromJSON decodes a message body.
func GroupEventFromJSON(data []byte) (GroupEvent, error) {
	var e GroupEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return GroupEvent{}, err
	}
	return e, nil
}
