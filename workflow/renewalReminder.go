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

// RenewalReminder queues one notification per certificate renewal approaching
// its expiry date. ReminderSentAt on the renewal row is the dedup guard, so a
// renewal never produces a second reminder no matter how often the sweep runs.
type RenewalReminder struct {
	DB     *gorm.DB
	Logger *logrus.Logger

	LeadTime      time.Duration
	SweepInterval time.Duration

	mu sync.Mutex
}

func NewRenewalReminder(db *gorm.DB, logger *logrus.Logger) *RenewalReminder {
	return &RenewalReminder{
		DB:            db,
		Logger:        logger,
		LeadTime:      30 * 24 * time.Hour,
		SweepInterval: 6 * time.Hour,
	}
}

func (r *RenewalReminder) Run(ctx context.Context) {
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
		if _, err := r.QueueRemindersNow(cycleCtx); err != nil && r.Logger != nil {
			logPassError(r.Logger, "RenewalReminder.Run", cycleCtx, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.SweepInterval):
		}
	}
}

// QueueRemindersNow queues reminders for every pending renewal inside the lead
// window and returns how many were queued. Per-renewal failures are logged and
// retried on the next sweep.
func (r *RenewalReminder) QueueRemindersNow(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().UTC().Add(r.LeadTime)
	due, err := models.PendingRenewalsDueBy(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, renewal := range due {
		if ctx.Err() != nil {
			break
		}
		if err := r.queueReminder(ctx, renewal); err != nil {
			if r.Logger != nil {
				config.LogError(r.Logger, "workflow", "RenewalReminder.QueueRemindersNow", renewal.ID, nil, err)
			}
			continue
		}
		queued++
	}
	return queued, nil
}

func (r *RenewalReminder) queueReminder(ctx context.Context, renewal *models.CompanyRenewal) error {
	company, err := models.GetCompany(ctx, renewal.CompanyId)
	if err != nil {
		return err
	}

	body := fmt.Sprintf("Certificate %s for %s expires on %s. Please submit the renewal before the expiry date.",
		renewal.CertificateNumber, company.Name, renewal.ExpiryDate.Format("2 Jan 2006"))

	input := &models.NewOutboxMessage{
		Type:      models.OutboxMessageTypeEmail,
		Recipient: company.Email,
		Subject:   "Certificate renewal due",
		Body:      body,
	}
	if company.Email == "" {
		if company.Phone == "" {
			// Nothing to notify; mark anyway so the sweep stops revisiting.
			return r.markReminded(ctx, renewal)
		}
		input = &models.NewOutboxMessage{
			Type:      models.OutboxMessageTypeSms,
			Recipient: company.Phone,
			Body:      body,
		}
	}

	if _, err := models.EnqueueOutboxMessage(ctx, input); err != nil {
		return err
	}
	return r.markReminded(ctx, renewal)
}

func (r *RenewalReminder) markReminded(ctx context.Context, renewal *models.CompanyRenewal) error {
	now := time.Now().UTC()
	renewal.ReminderSentAt = &now
	_, err := models.SaveCompanyRenewal(ctx, renewal)
	return err
}
