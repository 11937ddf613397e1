package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"taskflow/component"
	"taskflow/entity"
	"taskflow/storage"
)

// notice is the notification a scan wants to send for one task.
type notice struct {
	message  string
	severity component.Severity
	// scope identifies the deadline event in scoped mode.
	scope string
	// phrase follows the title in messages of this kind; used in legacy mode.
	phrase string
}

type scanKind struct {
	name   string
	window time.Duration
	build  func(task entity.Task, now time.Time) notice
}

const imminentPhrase = "arrive à échéance"

var imminentScan = scanKind{
	name:   "imminent",
	window: 24 * time.Hour,
	build: func(task entity.Task, now time.Time) notice {
		hours := HoursLeft(task.DueDate, now)
		severity := Classify(hours)
		return notice{
			message:  fmt.Sprintf("La tâche \"%s\" %s dans %d heures", task.Title, imminentPhrase, hours),
			severity: severity,
			scope:    fmt.Sprintf("deadline:imminent:%d:%d:%s", task.UserID, task.ID, severity),
			phrase:   imminentPhrase,
		}
	},
}

var upcomingScan = scanKind{
	name:   "upcoming",
	window: 3 * 24 * time.Hour,
	build: func(task entity.Task, now time.Time) notice {
		days := DaysLeft(task.DueDate, now)
		return notice{
			message:  fmt.Sprintf("Rappel: La tâche \"%s\" arrive à échéance dans %d jours", task.Title, days),
			severity: component.Info,
			scope:    fmt.Sprintf("deadline:upcoming:%d:%d:%dd", task.UserID, task.ID, days),
			phrase:   fmt.Sprintf("dans %d jours", days),
		}
	},
}

func (e *Engine) run(ctx context.Context, kind scanKind, running *atomic.Bool, now time.Time) (Report, error) {
	report := Report{Scan: kind.name}
	log := e.log.With(zap.String("scan", kind.name), zap.String("dedup_mode", string(e.mode)))

	if !running.CompareAndSwap(false, true) {
		log.Warn("previous run still active, skipping")
		scanRuns.WithLabelValues(kind.name, "skipped").Inc()
		return report, ErrScanInProgress
	}
	defer running.Store(false)

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if e.locker != nil {
		release, ok, err := e.locker.Acquire(ctx, "reminder:"+kind.name, e.timeout)
		if err != nil {
			log.Error("acquiring scan lock", zap.Error(err))
			scanRuns.WithLabelValues(kind.name, "error").Inc()
			return report, fmt.Errorf("acquiring %s scan lock: %w", kind.name, err)
		}
		if !ok {
			log.Info("scan held by another instance, skipping")
			scanRuns.WithLabelValues(kind.name, "skipped").Inc()
			return report, ErrScanInProgress
		}
		defer release()
	}

	start := time.Now()
	log.Info("deadline scan started", zap.Time("at", now))
	err := e.scan(ctx, kind, now, &report, log)
	scanDuration.WithLabelValues(kind.name).Observe(time.Since(start).Seconds())

	fields := []zap.Field{
		zap.Int("scanned", report.Scanned),
		zap.Int("created", report.Created),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Duration("took", time.Since(start)),
	}
	if err != nil {
		scanRuns.WithLabelValues(kind.name, "error").Inc()
		log.Error("deadline scan aborted", append(fields, zap.Error(err))...)
		return report, err
	}
	scanRuns.WithLabelValues(kind.name, "ok").Inc()
	log.Info("deadline scan finished", fields...)
	return report, nil
}

// scan walks the due tasks page by page. Only a failure to read a page or a
// cancelled context stops it; per-task failures are counted and logged.
func (e *Engine) scan(ctx context.Context, kind scanKind, now time.Time, report *Report, log *zap.Logger) error {
	to := now.Add(kind.window)
	var afterID int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := e.tasks.DueBetween(ctx, now, to, afterID, e.pageSize)
		if err != nil {
			return fmt.Errorf("reading tasks due before %s: %w", to.Format(time.RFC3339), err)
		}

		for _, task := range page {
			if err := ctx.Err(); err != nil {
				return err
			}
			report.Scanned++
			created, err := e.notify(ctx, kind, task, now)
			switch {
			case err != nil:
				report.Failed++
				scanTasks.WithLabelValues(kind.name, "failed").Inc()
				log.Error("deadline notification failed",
					zap.Int64("task_id", task.ID),
					zap.Int64("user_id", task.UserID),
					zap.Error(err))
			case created:
				report.Created++
				scanTasks.WithLabelValues(kind.name, "created").Inc()
			default:
				report.Skipped++
				scanTasks.WithLabelValues(kind.name, "skipped").Inc()
			}
		}

		if len(page) < e.pageSize {
			return nil
		}
		afterID = page[len(page)-1].ID
	}
}

// notify creates the notification for one task unless it was already sent.
// A panic is turned into an error so the rest of the page still runs.
func (e *Engine) notify(ctx context.Context, kind scanKind, task entity.Task, now time.Time) (created bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			created, err = false, fmt.Errorf("panic: %v", r)
		}
	}()

	if task.Status == component.Done {
		return false, nil
	}

	n := kind.build(task, now)
	seen, err := e.alreadyNotified(ctx, task.Title, n, now)
	if err != nil {
		return false, fmt.Errorf("checking previous notifications: %w", err)
	}
	if seen {
		return false, nil
	}

	note := entity.Notification{
		UserID:    task.UserID,
		Message:   n.message,
		Severity:  n.severity,
		Link:      task.Link(),
		CreatedAt: now,
	}
	if e.mode == DedupScoped {
		note.DedupScope = n.scope
		note.DedupKey = dedupKey(n.scope, now)
	}
	if err := e.notifications.Create(ctx, &note); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return false, nil
		}
		return false, fmt.Errorf("creating notification: %w", err)
	}

	e.log.Info("deadline notification created",
		zap.String("scan", kind.name),
		zap.Int64("task_id", task.ID),
		zap.String("username", task.Username),
		zap.String("severity", string(n.severity)))
	if e.publisher != nil {
		e.publisher.Publish(note)
	}
	return true, nil
}
