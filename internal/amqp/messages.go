package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// ImportCommittedMessage announces a committed import. It carries only ids
// and counts; consumers load the transactions from the database.
type ImportCommittedMessage struct {
	ImportFileID string    `json:"import_file_id"`
	UserID       string    `json:"user_id"`
	AccountID    int64     `json:"account_id"`
	Imported     int       `json:"imported"`
	Timestamp    time.Time `json:"timestamp"`
}

func NewImportCommittedMessage(importFileID, userID string, accountID int64, imported int) *ImportCommittedMessage {
	return &ImportCommittedMessage{
		ImportFileID: importFileID,
		UserID:       userID,
		AccountID:    accountID,
		Imported:     imported,
		Timestamp:    time.Now(),
	}
}

func (m *ImportCommittedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ImportCommittedMessageFromJSON(data []byte) (*ImportCommittedMessage, error) {
	var msg ImportCommittedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ImportFileID == "" {
		return nil, errors.New("import_file_id is required")
	}
	return &msg, nil
}
