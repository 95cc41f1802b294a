package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/inspect_backend/config"
	"bitbucket.org/mmdatafocus/inspect_backend/models"
	"bitbucket.org/mmdatafocus/inspect_backend/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// EmailSender delivers one email. Transport is an external collaborator.
type EmailSender interface {
	Send(ctx context.Context, to string, subject string, body string, isHTML bool) error
}

// SmsSender delivers one SMS to an E.164 number.
type SmsSender interface {
	SendSms(ctx context.Context, e164Number string, body string) error
}

// EventPublisher is the best-effort notification bus for UI observers.
type EventPublisher interface {
	Publish(event any)
}

// QueueClearedEvent is broadcast when a flush pass drains the last unsent
// message. Edge-triggered: not emitted on passes that drain nothing.
type QueueClearedEvent struct {
	ClearedAt time.Time
	Drained   int
}

// Flusher drains the outbox on a timer and on demand (connectivity recovery,
// user action). A delivery failure leaves the message queued for the next
// cycle and never blocks the rest of the batch; there is no attempts ceiling.
type Flusher struct {
	DB     *gorm.DB
	Logger *logrus.Logger
	Email  EmailSender
	Sms    SmsSender
	Bus    EventPublisher

	PhoneRegion  string
	PollInterval time.Duration

	// Serializes passes: timer and manual triggers must never interleave
	// writes to the same message.
	mu sync.Mutex
}

func NewFlusher(db *gorm.DB, logger *logrus.Logger, email EmailSender, sms SmsSender, bus EventPublisher) *Flusher {
	return &Flusher{
		DB:           db,
		Logger:       logger,
		Email:        email,
		Sms:          sms,
		Bus:          bus,
		PhoneRegion:  config.PhoneRegion(),
		PollInterval: 30 * time.Second,
	}
}

func (f *Flusher) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		cycleCtx := utils.SetCorrelationIdInContext(ctx, uuid.NewString())
		if err := f.FlushNow(cycleCtx); err != nil && f.Logger != nil {
			logPassError(f.Logger, "Flusher.Run", cycleCtx, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(f.PollInterval):
		}
	}
}

// FlushNow runs one flush pass. Safe to invoke repeatedly or concurrently
// with the timer; passes serialize on the internal mutex. Interrupting a
// pass mid-batch leaves delivered messages marked sent and the rest queued.
func (f *Flusher) FlushNow(ctx context.Context) error {
	cleared, err := f.flushLocked(ctx)
	// Publish after the mutex is released: a subscriber may react by
	// triggering another flush.
	if cleared != nil && f.Bus != nil {
		f.Bus.Publish(*cleared)
	}
	return err
}

func (f *Flusher) flushLocked(ctx context.Context) (*QueueClearedEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var pending []models.OutboxMessage
	err := f.DB.WithContext(ctx).
		Where("is_sent = ?", false).
		Order("created_at ASC, id ASC").
		Find(&pending).Error
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sent := 0
	for i := range pending {
		if ctx.Err() != nil {
			break
		}
		msg := &pending[i]
		if dispatchErr := f.dispatch(ctx, msg); dispatchErr != nil {
			f.recordAttempt(ctx, msg.ID, dispatchErr)
			continue
		}
		sentAt := time.Now().UTC()
		markErr := f.DB.WithContext(ctx).Model(&models.OutboxMessage{}).
			Where("id = ?", msg.ID).
			Updates(map[string]interface{}{
				"is_sent":  true,
				"sent_at":  &sentAt,
				"attempts": gorm.Expr("attempts + 1"),
			}).Error
		if markErr != nil {
			// Delivered but not recorded: the next pass retries and the
			// collaborator may see a duplicate. Duplicate over loss.
			f.recordAttempt(ctx, msg.ID, markErr)
			continue
		}
		sent++
	}

	if sent > 0 {
		var remaining int64
		if err := f.DB.WithContext(ctx).Model(&models.OutboxMessage{}).
			Where("is_sent = ?", false).Count(&remaining).Error; err != nil {
			return nil, err
		}
		if remaining == 0 {
			return &QueueClearedEvent{ClearedAt: now, Drained: sent}, nil
		}
	}
	return nil, nil
}

func (f *Flusher) dispatch(ctx context.Context, msg *models.OutboxMessage) error {
	switch msg.Type {
	case models.OutboxMessageTypeEmail:
		if f.Email == nil {
			return fmt.Errorf("email sender not configured")
		}
		return f.Email.Send(ctx, msg.Recipient, msg.Subject, msg.Body, msg.IsHtml)
	case models.OutboxMessageTypeSms:
		if f.Sms == nil {
			return fmt.Errorf("sms sender not configured")
		}
		number, err := utils.NormalizeToE164(msg.Recipient, f.PhoneRegion)
		if err != nil {
			return err
		}
		return f.Sms.SendSms(ctx, number, msg.Body)
	default:
		// The enqueue path only accepts the closed enum, but the column is a
		// plain string in storage. Leave the row queued.
		return fmt.Errorf("unknown outbox message type %q", msg.Type)
	}
}

func (f *Flusher) recordAttempt(ctx context.Context, id int, attemptErr error) {
	errMsg := attemptErr.Error()
	updateErr := f.DB.WithContext(ctx).Model(&models.OutboxMessage{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": &errMsg,
		}).Error
	if f.Logger != nil {
		f.Logger.WithFields(logrus.Fields{
			"module":     "workflow",
			"funcName":   "Flusher.dispatch",
			"message_id": id,
		}).Error("outbox delivery failed: " + errMsg)
		if updateErr != nil {
			config.LogError(f.Logger, "workflow", "Flusher.recordAttempt", fmt.Sprint(id), nil, updateErr)
		}
	}
}
