package jobs

import (
	"context"
	"time"

	"github.com/MLeprich/mitgliederverwaltung/internal/logger"
)

// RebuildCardExport writes a fresh Cardpresso snapshot and prunes old ones.
// Runs nightly so the printing station always points at current data.
func (jr *JobRunner) RebuildCardExport() {
	jr.runWithRecovery("RebuildCardExport", func() {
		ctx := context.Background()

		dir, err := jr.exporter.CreateSnapshot(ctx)
		if err != nil {
			logger.Error("Failed to create card export snapshot", "error", err)
			return
		}
		logger.Info("Card export rebuilt", "dir", dir)

		if err := jr.exporter.CleanupOld(); err != nil {
			logger.Error("Failed to clean up old snapshots", "error", err)
		}
	})
}

// SendExpiryReminders mails the configured recipient a list of cards that
// expire within the warning window. Does nothing when SMTP is not configured.
func (jr *JobRunner) SendExpiryReminders() {
	jr.runWithRecovery("SendExpiryReminders", func() {
		if jr.config.SMTP.Host == "" || jr.config.SMTP.To == "" {
			logger.Info("Expiry reminders skipped, SMTP not configured")
			return
		}
		ctx := context.Background()

		before := time.Now().AddDate(0, 0, jr.config.Policy.ExpiryWarnDays)
		members, err := jr.store.ListExpiring(ctx, before, 0)
		if err != nil {
			logger.Error("Failed to load expiring members", "error", err)
			return
		}
		if len(members) == 0 {
			logger.Info("No cards expiring within warning window")
			return
		}

		if err := jr.email.SendExpiryReminder(ctx, jr.config.SMTP.To, members); err != nil {
			logger.Error("Failed to send expiry reminder", "error", err)
			return
		}
		logger.Info("Expiry reminder sent", "recipient", jr.config.SMTP.To, "members", len(members))
	})
}
