package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/inspect_backend/config"
	"bitbucket.org/mmdatafocus/inspect_backend/utils"
	"gorm.io/gorm"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "Scheduled"
	AppointmentStatusConfirmed AppointmentStatus = "Confirmed"
	AppointmentStatusCancelled AppointmentStatus = "Cancelled"
	AppointmentStatusKept      AppointmentStatus = "Kept"
)

type Appointment struct {
	SyncEntity
	CompanyId   string            `gorm:"size:36;index;not null" json:"company_id"`
	InspectorId string            `gorm:"size:36;index" json:"inspector_id"`
	ScheduledAt time.Time         `gorm:"index" json:"scheduled_at"`
	Purpose     string            `gorm:"size:255" json:"purpose"`
	Status      AppointmentStatus `gorm:"size:20;default:Scheduled" json:"status"`
}

type NewAppointment struct {
	CompanyId   string    `json:"company_id" validate:"required"`
	InspectorId string    `json:"inspector_id"`
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
	Purpose     string    `json:"purpose"`
}

// CreateAppointment saves the appointment and queues the scheduling
// confirmation in the same transaction: the notification exists if and only
// if the appointment committed. Email when the company has one, SMS when it
// only has a phone; neither is an error (field records are often sparse).
func CreateAppointment(ctx context.Context, input *NewAppointment) (*Appointment, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	company, err := GetCompany(ctx, input.CompanyId)
	if err != nil {
		return nil, err
	}
	if input.InspectorId == "" {
		if userId, ok := utils.GetUserIdFromContext(ctx); ok {
			input.InspectorId = userId
		}
	}

	appointment := &Appointment{
		CompanyId:   input.CompanyId,
		InspectorId: input.InspectorId,
		ScheduledAt: input.ScheduledAt,
		Purpose:     input.Purpose,
		Status:      AppointmentStatusScheduled,
	}
	appointment.EnsureID()
	appointment.Touch()

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(appointment).Error; err != nil {
			return err
		}
		return queueConfirmationTx(tx, company, appointment)
	})
	if err != nil {
		return nil, err
	}
	return appointment, nil
}

func queueConfirmationTx(tx *gorm.DB, company *Company, appointment *Appointment) error {
	when := appointment.ScheduledAt.Format("2 Jan 2006 15:04")
	body := fmt.Sprintf("Inspection appointment for %s scheduled on %s.", company.Name, when)

	if company.Email != "" {
		_, err := enqueueOutboxTx(tx, &NewOutboxMessage{
			Type:      OutboxMessageTypeEmail,
			Recipient: company.Email,
			Subject:   "Inspection appointment scheduled",
			Body:      body,
		})
		return err
	}
	if company.Phone != "" {
		_, err := enqueueOutboxTx(tx, &NewOutboxMessage{
			Type:      OutboxMessageTypeSms,
			Recipient: company.Phone,
			Body:      body,
		})
		return err
	}
	return nil
}

func SaveAppointment(ctx context.Context, appointment *Appointment) (*Appointment, error) {
	if err := SaveSynced[Appointment](ctx, appointment); err != nil {
		return nil, err
	}
	return appointment, nil
}

func GetAppointment(ctx context.Context, id string) (*Appointment, error) {
	return GetSynced[Appointment](ctx, id)
}

func ListUpcomingAppointments(ctx context.Context, from time.Time) ([]*Appointment, error) {
	db := config.GetDB()
	var results []*Appointment
	err := db.WithContext(ctx).
		Where("scheduled_at >= ? AND status <> ? AND is_deleted = ?", from, AppointmentStatusCancelled, false).
		Order("scheduled_at ASC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func DeleteAppointment(ctx context.Context, id string) error {
	return SoftDelete[Appointment, *Appointment](ctx, id)
}
