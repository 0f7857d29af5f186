// Package scheduler provides cron-based job scheduling for flowbot.
//
// It runs recurring maintenance jobs such as the pending-order reminder.
package scheduler

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/surtifrio/flowbot/internal/models"
	"github.com/surtifrio/flowbot/internal/util"
)

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler() *Scheduler {
	// Standard 5-field cron parser (min, hour, dom, month, dow) with panic recovery
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// OrderStore is the store subset consumed by the reminder job.
type OrderStore interface {
	ListOrders() ([]models.Order, error)
	AddNotification(n models.Notification) error
}

// PendingOrderReminder raises an admin notification when orders sit in
// pending beyond maxAge. Intended to run on a daily cron.
func PendingOrderReminder(st OrderStore, maxAge time.Duration) func() {
	return func() {
		orders, err := st.ListOrders()
		if err != nil {
			slog.Error("PendingOrderReminder failed to list orders", "error", err)
			return
		}

		cutoff := time.Now().Add(-maxAge)
		stale := 0
		for _, o := range orders {
			if o.Status == models.OrderStatusPending && o.CreatedAt.Before(cutoff) {
				stale++
			}
		}
		if stale == 0 {
			slog.Debug("PendingOrderReminder found no stale orders")
			return
		}

		notification := models.Notification{
			ID:        util.GenerateNotificationID(),
			Kind:      models.NotificationPendingOrders,
			Message:   fmt.Sprintf("%d pedidos llevan más de %s en estado pendiente", stale, maxAge),
			CreatedAt: time.Now(),
		}
		if err := st.AddNotification(notification); err != nil {
			slog.Error("PendingOrderReminder failed to add notification", "error", err)
			return
		}
		slog.Info("PendingOrderReminder raised notification", "stale_orders", stale)
	}
}
