package reminder

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"taskflow/entity"
)

// ErrScanInProgress is returned when a scan of the same kind is still running,
// in this process or, with a Locker, in another one.
var ErrScanInProgress = errors.New("reminder: scan already in progress")

const (
	DefaultLookback = 24 * time.Hour
	DefaultPageSize = 100
	DefaultTimeout  = 5 * time.Minute
)

// TaskSource pages through unfinished tasks due in a time range.
type TaskSource interface {
	DueBetween(ctx context.Context, from, to time.Time, afterID int64, limit int) ([]entity.Task, error)
}

// NotificationStore is the part of the notification storage the engine needs.
type NotificationStore interface {
	ExistsScopeSince(ctx context.Context, scope string, since time.Time) (bool, error)
	ExistsMatchingSince(ctx context.Context, title, phrase string, since time.Time) (bool, error)
	Create(ctx context.Context, n *entity.Notification) error
}

// Publisher pushes freshly created notifications to connected clients.
type Publisher interface {
	Publish(n entity.Notification)
}

// Locker guards a scan across processes. Acquire returns ok=false when
// someone else holds the lock.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(), ok bool, err error)
}

type Options struct {
	Mode      DedupMode
	Lookback  time.Duration
	PageSize  int
	Timeout   time.Duration
	Publisher Publisher
	Locker    Locker
	Now       func() time.Time
}

type Engine struct {
	tasks         TaskSource
	notifications NotificationStore
	log           *zap.Logger

	mode      DedupMode
	lookback  time.Duration
	pageSize  int
	timeout   time.Duration
	publisher Publisher
	locker    Locker
	now       func() time.Time

	imminentRunning atomic.Bool
	upcomingRunning atomic.Bool
}

func NewEngine(tasks TaskSource, notifications NotificationStore, log *zap.Logger, opts Options) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		tasks:         tasks,
		notifications: notifications,
		log:           log.Named("reminder"),
		mode:          opts.Mode,
		lookback:      opts.Lookback,
		pageSize:      opts.PageSize,
		timeout:       opts.Timeout,
		publisher:     opts.Publisher,
		locker:        opts.Locker,
		now:           opts.Now,
	}
	if e.mode == "" {
		e.mode = DedupScoped
	}
	if e.lookback <= 0 {
		e.lookback = DefaultLookback
	}
	if e.pageSize <= 0 {
		e.pageSize = DefaultPageSize
	}
	if e.timeout <= 0 {
		e.timeout = DefaultTimeout
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

func (e *Engine) Mode() DedupMode { return e.mode }

// Report summarises one scan run.
type Report struct {
	Scan    string `json:"scan"`
	Scanned int    `json:"scanned"`
	Created int    `json:"created"`
	Skipped int    `json:"skipped"`
	Failed  int    `json:"failed"`
}

// ScanImminent notifies owners of unfinished tasks due within the next
// 24 hours of now.
func (e *Engine) ScanImminent(ctx context.Context, now time.Time) (Report, error) {
	return e.run(ctx, imminentScan, &e.imminentRunning, now)
}

// ScanUpcoming notifies owners of unfinished tasks due within the next
// three days of now.
func (e *Engine) ScanUpcoming(ctx context.Context, now time.Time) (Report, error) {
	return e.run(ctx, upcomingScan, &e.upcomingRunning, now)
}

// CheckDeadlines runs the imminent scan at the engine's current time.
func (e *Engine) CheckDeadlines(ctx context.Context) (Report, error) {
	return e.ScanImminent(ctx, e.now())
}

// CheckUpcomingDeadlines runs the upcoming scan at the engine's current time.
func (e *Engine) CheckUpcomingDeadlines(ctx context.Context) (Report, error) {
	return e.ScanUpcoming(ctx, e.now())
}
