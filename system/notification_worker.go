package system

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"taskflow/component"
	"taskflow/entity"
)

const storeTimeout = 5 * time.Second

// NotificationJob is an in-app notification waiting to be stored.
type NotificationJob struct {
	UserID   int64
	Message  string
	Severity component.Severity
	Link     string
}

type NotificationCreator interface {
	Create(ctx context.Context, n *entity.Notification) error
}

type Publisher interface {
	Publish(n entity.Notification)
}

// NotificationWorkerPool stores notifications off the request path and
// pushes them to live connections once they have an id.
type NotificationWorkerPool struct {
	Store     NotificationCreator
	Publisher Publisher
	JobQueue  chan NotificationJob
	NumWorker int

	log     *zap.Logger
	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool
}

func NewNotificationWorkerPool(store NotificationCreator, publisher Publisher, numWorker int, log *zap.Logger) *NotificationWorkerPool {
	if log == nil {
		log = zap.NewNop()
	}
	return &NotificationWorkerPool{
		Store:     store,
		Publisher: publisher,
		JobQueue:  make(chan NotificationJob, 100),
		NumWorker: numWorker,
		log:       log.Named("notifications"),
	}
}

// Start runs the workers. They keep draining the queue after ctx is
// cancelled and only exit once Stop has closed it.
func (p *NotificationWorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.NumWorker; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Submit queues a job without blocking. It returns false when the queue is
// full or the pool is stopped.
func (p *NotificationWorkerPool) Submit(job NotificationJob) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return false
	}
	select {
	case p.JobQueue <- job:
		return true
	default:
		p.log.Warn("notification queue full, dropping job", zap.Int64("user_id", job.UserID))
		return false
	}
}

// Stop closes the queue and waits for workers to drain it.
func (p *NotificationWorkerPool) Stop() {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.JobQueue)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *NotificationWorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	// jobs queued before shutdown are still stored
	ctx = context.WithoutCancel(ctx)
	for job := range p.JobQueue {
		if err := p.process(ctx, job); err != nil {
			p.log.Error("storing notification", zap.Int("worker", id),
				zap.Int64("user_id", job.UserID), zap.Error(err))
		}
	}
	p.log.Debug("worker shutting down", zap.Int("worker", id))
}

func (p *NotificationWorkerPool) process(ctx context.Context, job NotificationJob) error {
	n := entity.Notification{
		UserID:   job.UserID,
		Message:  job.Message,
		Severity: job.Severity,
		Link:     job.Link,
	}
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := p.Store.Create(ctx, &n); err != nil {
		return err
	}
	if p.Publisher != nil {
		p.Publisher.Publish(n)
	}
	return nil
}
