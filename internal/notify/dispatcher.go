package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/mr1hm/go-disaster-notify/internal/models"
	"github.com/mr1hm/go-disaster-notify/internal/observability"
	"github.com/mr1hm/go-disaster-notify/internal/repository"
	"github.com/mr1hm/go-disaster-notify/internal/worker"
)

type DispatcherConfig struct {
	Channel       models.Channel
	Workers       int
	BufferSize    int
	RatePerSecond float64
	Burst         int
}

// delivery is one queued send; the notification row already exists.
type delivery struct {
	NotificationID int64
	UserID         int64
	Channel        models.Channel
	Title          string
	Body           string
}

// Dispatcher turns a stored disaster into notification rows for its
// matched subscribers and delivers them on a worker pool.
type Dispatcher struct {
	store   repository.Store
	matcher *Matcher
	senders Senders
	channel models.Channel
	limiter *rate.Limiter
	clock   clockwork.Clock
	metrics *observability.Metrics
	pool    *worker.WorkerPool

	// enqueuers feed the pool off the caller's goroutine.
	enqueuers sync.WaitGroup
	mu        sync.Mutex
	stopped   bool
}

func NewDispatcher(
	cfg DispatcherConfig,
	store repository.Store,
	senders Senders,
	clock clockwork.Clock,
	metrics *observability.Metrics,
) *Dispatcher {
	d := &Dispatcher{
		store:   store,
		matcher: NewMatcher(store),
		senders: senders,
		channel: cfg.Channel,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		clock:   clock,
		metrics: metrics,
	}
	d.pool = worker.NewWorkerPool("dispatch", cfg.Workers, cfg.BufferSize, d.process)
	return d
}

func (d *Dispatcher) Start(ctx context.Context) {
	d.pool.Start(ctx)
}

// Stop rejects new dispatches, waits for pending enqueues and then for
// queued deliveries to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()

	d.enqueuers.Wait()
	d.pool.Stop()
}

// Title is the notification title for a disaster, e.g. "[폭염] 안전안내".
func Title(dis *models.Disaster) string {
	return fmt.Sprintf("[%s] %s", dis.Type, dis.SeverityLevel)
}

// Dispatch creates one unsent notification per matched subscriber in a
// single transaction, then hands the deliveries to a background enqueuer
// and returns without waiting on the pool or the gateway. It returns the
// number of notifications created. Deliveries that cannot be queued keep
// their row unsent.
func (d *Dispatcher) Dispatch(ctx context.Context, dis *models.Disaster) (int, error) {
	users, err := d.matcher.Match(ctx, dis)
	if err != nil {
		return 0, fmt.Errorf("match subscribers for disaster %d: %w", dis.ID, err)
	}
	if len(users) == 0 {
		slog.Debug("no subscribers matched", "disaster_id", dis.ID, "type", dis.Type)
		return 0, nil
	}

	title := Title(dis)
	created := d.clock.Now().UTC()
	jobs := make([]delivery, 0, len(users))

	err = d.store.WithTx(ctx, func(tx repository.Repository) error {
		for _, uid := range users {
			n := &models.Notification{
				UserID:     uid,
				DisasterID: dis.ID,
				Channel:    d.channel,
				Title:      title,
				Body:       dis.Message,
				CreatedAt:  created,
			}
			if err := tx.CreateNotification(ctx, n); err != nil {
				return err
			}
			jobs = append(jobs, delivery{
				NotificationID: n.ID,
				UserID:         uid,
				Channel:        n.Channel,
				Title:          n.Title,
				Body:           n.Body,
			})
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("create notifications for disaster %d: %w", dis.ID, err)
	}
	d.metrics.Notifications.WithLabelValues(string(d.channel), "created").Add(float64(len(jobs)))

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return len(jobs), fmt.Errorf("queue deliveries for disaster %d: %w", dis.ID, worker.ErrPoolStopped)
	}
	d.enqueuers.Add(1)
	d.mu.Unlock()
	go d.enqueue(ctx, dis.ID, jobs)

	slog.Info("notifications dispatched", "disaster_id", dis.ID, "count", len(jobs), "channel", d.channel)
	return len(jobs), nil
}

// enqueue submits jobs in order, blocking while the pool buffer is full.
// It stops at the first failure; the remaining rows stay unsent.
func (d *Dispatcher) enqueue(ctx context.Context, disasterID int64, jobs []delivery) {
	defer d.enqueuers.Done()
	for i, job := range jobs {
		if err := d.pool.Submit(ctx, job); err != nil {
			slog.Error("failed to queue deliveries",
				"disaster_id", disasterID, "queued", i, "total", len(jobs), "error", err)
			return
		}
		d.metrics.DispatchQueue.Set(float64(d.pool.Pending()))
	}
}

func (d *Dispatcher) process(ctx context.Context, job worker.Job) error {
	j, ok := job.(delivery)
	if !ok {
		return fmt.Errorf("unexpected job type %T", job)
	}
	defer d.metrics.DispatchQueue.Set(float64(d.pool.Pending()))
	return d.deliver(ctx, j)
}

// deliver sends one notification. Only a confirmed send marks the row.
func (d *Dispatcher) deliver(ctx context.Context, j delivery) error {
	log := slog.With("notification_id", j.NotificationID, "user_id", j.UserID, "channel", j.Channel)
	outcome := d.metrics.Notifications.WithLabelValues(string(j.Channel), "skipped")

	sender, ok := d.senders[j.Channel]
	if !ok {
		outcome.Inc()
		log.Error("no sender configured for channel")
		return nil
	}

	user, err := d.store.GetUser(ctx, j.UserID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("get user %d: %w", j.UserID, err)
	}
	var target string
	if user != nil {
		target = user.Target(j.Channel)
	}
	if target == "" {
		outcome.Inc()
		log.Warn("no delivery target registered, skipping")
		return nil
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}

	if err := sender.Send(ctx, target, j.Title, j.Body); err != nil {
		d.metrics.Notifications.WithLabelValues(string(j.Channel), "failed").Inc()
		log.Error("delivery failed", "error", err)
		return err
	}

	marked, err := d.store.MarkSent(ctx, j.NotificationID, d.clock.Now())
	if err != nil {
		log.Error("failed to mark notification sent", "error", err)
		return err
	}
	if marked {
		d.metrics.Notifications.WithLabelValues(string(j.Channel), "sent").Inc()
	}
	log.Debug("notification delivered")
	return nil
}
