package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/inspect_backend/config"
	"bitbucket.org/mmdatafocus/inspect_backend/utils"
	"gorm.io/gorm"
)

// OutboxMessageType is a closed set: an unknown kind is a compile-time
// impossibility on the enqueue path. The flusher still guards its dispatch
// switch because the column is a plain string in storage.
type OutboxMessageType string

const (
	OutboxMessageTypeEmail OutboxMessageType = "Email"
	OutboxMessageTypeSms   OutboxMessageType = "Sms"
)

// OutboxMessage is a durably queued outbound notification, decoupled from the
// business transaction that triggered it. Locally assigned monotonic ID.
// Unsent messages are never physically removed on failure; they persist for
// the next flush cycle. Attempts is observability only and does not gate
// retry: there is no maximum-attempts cutoff or dead-letter state.
type OutboxMessage struct {
	ID        int               `gorm:"primary_key" json:"id"`
	Type      OutboxMessageType `gorm:"size:10;not null" json:"type"`
	Recipient string            `gorm:"size:255;not null" json:"recipient"`
	Subject   string            `gorm:"size:255" json:"subject"`
	Body      string            `gorm:"type:text" json:"body"`
	IsHtml    bool              `gorm:"not null;default:false" json:"is_html"`
	IsSent    bool              `gorm:"not null;default:false;index" json:"is_sent"`
	SentAt    *time.Time        `json:"sent_at"`
	Attempts  int               `gorm:"not null;default:0" json:"attempts"`
	LastError *string           `gorm:"type:text" json:"last_error"`
	CreatedAt time.Time         `gorm:"autoCreateTime;index" json:"created_at"`
}

type NewOutboxMessage struct {
	Type      OutboxMessageType `json:"type" validate:"required,oneof=Email Sms"`
	Recipient string            `json:"recipient" validate:"required"`
	Subject   string            `json:"subject"`
	Body      string            `json:"body" validate:"required"`
	IsHtml    bool              `json:"is_html"`
}

// EnqueueOutboxMessage durably queues a notification for the flusher.
func EnqueueOutboxMessage(ctx context.Context, input *NewOutboxMessage) (*OutboxMessage, error) {
	db := config.GetDB()
	return enqueueOutboxTx(db.WithContext(ctx), input)
}

// enqueueOutboxTx writes the message inside the caller's transaction, so the
// notification is committed (or rolled back) with the business action that
// requires it. Delivery happens asynchronously in the flusher after commit.
func enqueueOutboxTx(tx *gorm.DB, input *NewOutboxMessage) (*OutboxMessage, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	// A bad address would otherwise poison the queue: the flusher retries it
	// forever. Reject at the door instead.
	if input.Type == OutboxMessageTypeEmail && !utils.IsValidEmail(input.Recipient) {
		return nil, errors.New("invalid email recipient")
	}
	message := OutboxMessage{
		Type:      input.Type,
		Recipient: input.Recipient,
		Subject:   input.Subject,
		Body:      input.Body,
		IsHtml:    input.IsHtml,
		IsSent:    false,
	}
	if err := tx.Create(&message).Error; err != nil {
		return nil, err
	}
	return &message, nil
}

// UnsentOutboxMessages returns the queued set oldest first, so one flush pass
// attempts delivery in creation order and no message starves.
func UnsentOutboxMessages(ctx context.Context) ([]*OutboxMessage, error) {
	db := config.GetDB()
	var results []*OutboxMessage
	err := db.WithContext(ctx).
		Where("is_sent = ?", false).
		Order("created_at ASC, id ASC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func CountUnsentOutbox(ctx context.Context) (int64, error) {
	db := config.GetDB()
	var count int64
	err := db.WithContext(ctx).Model(&OutboxMessage{}).Where("is_sent = ?", false).Count(&count).Error
	return count, err
}

// MarkOutboxSent stamps a delivered message. Terminal.
func MarkOutboxSent(ctx context.Context, id int, sentAt time.Time) error {
	db := config.GetDB()
	return db.WithContext(ctx).Model(&OutboxMessage{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_sent":  true,
			"sent_at":  &sentAt,
			"attempts": gorm.Expr("attempts + 1"),
		}).Error
}

// RecordOutboxAttempt notes a failed delivery attempt; the message stays
// queued for the next cycle.
func RecordOutboxAttempt(ctx context.Context, id int, attemptErr error) error {
	db := config.GetDB()
	msg := attemptErr.Error()
	return db.WithContext(ctx).Model(&OutboxMessage{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": &msg,
		}).Error
}

// DeleteOutboxMessage is the user-initiated removal path. Outbox rows are
// never synchronized to a remote peer, so hard delete is permitted here.
func DeleteOutboxMessage(ctx context.Context, id int) error {
	db := config.GetDB()
	result := db.WithContext(ctx).Delete(&OutboxMessage{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return utils.ErrorRecordNotFound
	}
	return nil
}

// ResendOutboxMessage re-queues a message, optionally with edited content.
// This is the only post-creation content edit the outbox allows.
func ResendOutboxMessage(ctx context.Context, id int, subject *string, body *string) (*OutboxMessage, error) {
	db := config.GetDB()
	var message OutboxMessage
	if err := db.WithContext(ctx).First(&message, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	if subject != nil {
		message.Subject = *subject
	}
	if body != nil {
		message.Body = *body
	}
	message.IsSent = false
	message.SentAt = nil
	message.LastError = nil
	if err := db.WithContext(ctx).Save(&message).Error; err != nil {
		return nil, err
	}
	return &message, nil
}
