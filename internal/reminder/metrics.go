package reminder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Исходы сверки по причине решения
	reconcileTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simpletask_reminder_reconcile_total",
			Help: "Reminder reconciliations by action and reason",
		},
		[]string{"action", "reason"},
	)

	cancelledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "simpletask_reminder_cancelled_total",
			Help: "Notifications cancelled by the reminder synchronizer",
		},
	)

	failedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "simpletask_reminder_schedule_failed_total",
			Help: "Notification scheduling failures",
		},
	)
)
