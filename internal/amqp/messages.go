package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"registro/internal/core"
)

// SyncAction tells the consumer what happened to a transaction.
type SyncAction string

const (
	ActionUpsert SyncAction = "upsert"
	ActionDelete SyncAction = "delete"
)

// TransactionSyncMessage announces a ledger change. It carries only the
// identity of the transaction; the worker reads the rest from the database.
type TransactionSyncMessage struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Action    SyncAction `json:"action"`
	// Date is set on deletes, when the row can no longer be read back.
	Date      string     `json:"date,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

func NewTransactionSyncMessage(userID, id string, action SyncAction) *TransactionSyncMessage {
	return &TransactionSyncMessage{
		ID:        id,
		UserID:    userID,
		Action:    action,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *TransactionSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionSyncMessageFromJSON decodes and checks a message body.
func TransactionSyncMessageFromJSON(data []byte) (*TransactionSyncMessage, error) {
	var msg TransactionSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, fmt.Errorf("message without transaction id")
	}
	switch msg.Action {
	case ActionUpsert:
	case ActionDelete:
		if _, err := core.ParseDate(msg.Date); err != nil {
			return nil, fmt.Errorf("delete message: %w", err)
		}
	case "":
		msg.Action = ActionUpsert
	default:
		return nil, fmt.Errorf("unknown action %q", msg.Action)
	}
	return &msg, nil
}
