package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"bitbucket.org/mmdatafocus/inspect_backend/config"
	"bitbucket.org/mmdatafocus/inspect_backend/models"
	"bitbucket.org/mmdatafocus/inspect_backend/utils"
	"bitbucket.org/mmdatafocus/inspect_backend/workflow"
	"github.com/sirupsen/logrus"
)

// logEmailSender writes outbound mail to the log. Stands in until a real
// provider is configured.
type logEmailSender struct {
	logger *logrus.Logger
}

func (s *logEmailSender) Send(ctx context.Context, to string, subject string, body string, isHTML bool) error {
	s.logger.WithFields(logrus.Fields{
		"channel": "email",
		"to":      to,
		"subject": subject,
		"is_html": isHTML,
	}).Info(body)
	return nil
}

type logSmsSender struct {
	logger *logrus.Logger
}

func (s *logSmsSender) SendSms(ctx context.Context, e164Number string, body string) error {
	s.logger.WithFields(logrus.Fields{
		"channel": "sms",
		"to":      e164Number,
	}).Info(body)
	return nil
}

// newRemoteStore wires the authoritative backend. Returns nil when none is
// configured; the device then runs fully offline and the coordinator is not
// started.
func newRemoteStore() workflow.RemoteStore {
	if strings.TrimSpace(os.Getenv("REMOTE_SYNC_URL")) == "" {
		return nil
	}
	// TODO(zayar): HTTP client for the central compliance API once its
	// endpoints are finalized.
	return nil
}

func main() {
	logger := config.GetLogger()
	logger.SetLevel(logrus.InfoLevel)

	if err := config.ConnectDatabase(); err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	if err := models.MigrateTable(); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Every background pass carries the device identity.
	deviceId := strings.TrimSpace(os.Getenv("DEVICE_ID"))
	if deviceId == "" {
		if host, err := os.Hostname(); err == nil {
			deviceId = host
		}
	}
	rootCtx := utils.SetDeviceIdInContext(sigCtx, deviceId)

	db := config.GetDB()
	bus := config.GetNotificationBus()
	bus.Subscribe(func(event any) {
		if cleared, ok := event.(workflow.QueueClearedEvent); ok {
			logger.WithFields(logrus.Fields{
				"drained":    cleared.Drained,
				"cleared_at": cleared.ClearedAt,
			}).Info("outbox queue cleared")
		}
	})

	flusher := workflow.NewFlusher(db, logger, &logEmailSender{logger: logger}, &logSmsSender{logger: logger}, bus)
	archiver := workflow.NewArchiver(db, logger)
	reminder := workflow.NewRenewalReminder(db, logger)

	go flusher.Run(rootCtx)
	go archiver.Run(rootCtx)
	go reminder.Run(rootCtx)

	if remote := newRemoteStore(); remote != nil {
		coordinator := workflow.NewCoordinator(db, logger, remote)
		go coordinator.Run(rootCtx)
	} else {
		logger.Warn("no remote store configured; running offline only")
	}

	<-sigCtx.Done()
	log.Println("shutting down")
}
