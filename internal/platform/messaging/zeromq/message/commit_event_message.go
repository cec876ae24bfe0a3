package message

import "CipherDB/internal/domain"

type CommitEventMessage struct {
	Database  string   `json:"database"`
	TxID      uint64   `json:"tx_id"`
	Tables    []string `json:"tables,omitempty"`
	Frames    int      `json:"frames"`
	Timestamp int64    `json:"timestamp"`
}

func CommitEventMessageFrom(event domain.CommitEvent) CommitEventMessage {
	return CommitEventMessage{
		Database:  event.Database,
		TxID:      event.TxID,
		Tables:    event.Tables,
		Frames:    event.Frames,
		Timestamp: event.Timestamp,
	}
}

func (m *CommitEventMessage) ToCommitEvent() domain.CommitEvent {
	return domain.CommitEvent{
		Database:  m.Database,
		TxID:      m.TxID,
		Tables:    m.Tables,
		Frames:    m.Frames,
		Timestamp: m.Timestamp,
	}
}
