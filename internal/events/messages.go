package events

import (
	"encoding/json"
	"time"
)

// Kind names the change that happened to a user's transaction list.
type Kind string

const (
	KindCreated  Kind = "created"
	KindUpdated  Kind = "updated"
	KindSplit    Kind = "split"
	KindDeleted  Kind = "deleted"
	KindImported Kind = "imported"
)

// ChangeMessage tells other sessions of the same user that their cached
// transaction list is stale and should be refetched. It intentionally
// carries no field values; consumers reconcile by refetching.
type ChangeMessage struct {
	Kind          Kind      `json:"kind"`
	UserID        string    `json:"userId"`
	TransactionID string    `json:"transactionId,omitempty"`
	Count         int64     `json:"count,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewChangeMessage builds a message stamped with the current time.
func NewChangeMessage(kind Kind, userID, transactionID string) *ChangeMessage {
	return &ChangeMessage{
		Kind:          kind,
		UserID:        userID,
		TransactionID: transactionID,
		Timestamp:     time.Now(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ChangeMessageFromJSON creates a message from JSON bytes.
func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
