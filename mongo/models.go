package mongo

import (
	"fmt"
	"time"

	"github.com/AdewaleAdeniji/mailqueue"
)

type payloadModel struct {
	To      string `bson:"to"`
	Subject string `bson:"subject"`
	Body    string `bson:"body"`
}

type entryModel struct {
	ID         string       `bson:"_id"`
	Payload    payloadModel `bson:"payload"`
	Sent       bool         `bson:"sent"`
	Claimed    bool         `bson:"claimed"`
	RetryCount int          `bson:"retryCount"`
	LastError  string       `bson:"lastError,omitempty"`
	CreatedAt  time.Time    `bson:"createdAt"`
	UpdatedAt  time.Time    `bson:"updatedAt"`
	SentAt     *time.Time   `bson:"sentAt,omitempty"`
}

func toEntryModel(id mailqueue.ID, payload mailqueue.Payload, now time.Time) entryModel {
	return entryModel{
		ID: id.String(),
		Payload: payloadModel{
			To:      payload.To,
			Subject: payload.Subject,
			Body:    payload.Body,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func fromEntryModel(m *entryModel) (mailqueue.Entry, error) {
	id, err := mailqueue.ParseID(m.ID)
	if err != nil {
		return mailqueue.Entry{}, fmt.Errorf("mailqueue mongo: parse id %q: %w", m.ID, err)
	}

	return mailqueue.Entry{
		ID: id,
		Payload: mailqueue.Payload{
			To:      m.Payload.To,
			Subject: m.Payload.Subject,
			Body:    m.Payload.Body,
		},
		Sent:       m.Sent,
		Claimed:    m.Claimed,
		RetryCount: m.RetryCount,
		LastError:  m.LastError,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
		SentAt:     m.SentAt,
	}, nil
}
