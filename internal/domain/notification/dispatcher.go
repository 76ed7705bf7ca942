package notification

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/outlet-commerce/internal/domain/order"
)

var _ order.Notifier = (*Dispatcher)(nil)

// Channel names a delivery route.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
	ChannelEvent Channel = "event"
)

// Config controls the dispatcher worker pool and retry policy.
type Config struct {
	Workers        int
	QueueSize      int
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Timeout bounds a single delivery attempt.
	Timeout time.Duration
}

func (c *Config) setDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}

// Deps are the delivery collaborators. Nil members disable their channel.
type Deps struct {
	SMS      SMSSender
	Email    EmailSender
	Invoices InvoiceRenderer
	Events   EventPublisher
}

type job struct {
	channel Channel
	order   order.Order
}

// Dispatcher queues order notifications and delivers them from a pool of
// workers. OrderChanged never blocks; when the queue is full the
// notification is dropped and logged.
type Dispatcher struct {
	lg   *zap.Logger
	cfg  Config
	deps Deps

	mu     sync.RWMutex
	closed bool
	queue  chan job

	failed  metric.Int64Counter
	dropped metric.Int64Counter
}

// NewDispatcher creates a Dispatcher. Call Run to start delivering.
func NewDispatcher(lg *zap.Logger, cfg Config, deps Deps, mp metric.MeterProvider) (*Dispatcher, error) {
	cfg.setDefaults()
	if mp == nil {
		mp = metricnoop.NewMeterProvider()
	}
	meter := mp.Meter("github.com/xenking/outlet-commerce/internal/domain/notification")

	d := &Dispatcher{
		lg:    lg,
		cfg:   cfg,
		deps:  deps,
		queue: make(chan job, cfg.QueueSize),
	}

	var err error
	if d.failed, err = meter.Int64Counter("shop.notifications.failed",
		metric.WithDescription("Notifications that exhausted their retries"),
	); err != nil {
		return nil, errors.Wrap(err, "notifications.failed counter")
	}
	if d.dropped, err = meter.Int64Counter("shop.notifications.dropped",
		metric.WithDescription("Notifications dropped because the queue was full"),
	); err != nil {
		return nil, errors.Wrap(err, "notifications.dropped counter")
	}
	return d, nil
}

// OrderChanged implements order.Notifier.
func (d *Dispatcher) OrderChanged(ctx context.Context, o order.Order) {
	if d.deps.SMS != nil {
		if o.Phone != "" {
			d.enqueue(ctx, job{channel: ChannelSMS, order: o})
		} else {
			d.lg.Warn("No phone on order, skipping SMS", zap.String("order", o.Number))
		}
	}
	if d.deps.Email != nil && o.Email != "" {
		d.enqueue(ctx, job{channel: ChannelEmail, order: o})
	}
	if d.deps.Events != nil {
		d.enqueue(ctx, job{channel: ChannelEvent, order: o})
	}
}

func (d *Dispatcher) enqueue(ctx context.Context, j job) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.closed {
		select {
		case d.queue <- j:
			return
		default:
		}
	}
	d.dropped.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", string(j.channel))))
	d.lg.Error("Notification dropped",
		zap.String("channel", string(j.channel)),
		zap.String("order", j.order.Number),
		zap.Bool("closed", d.closed),
	)
}

// Run delivers queued notifications until Close is called and the queue is
// drained. Deliveries in flight are not cancelled with ctx.
func (d *Dispatcher) Run(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)

	g, ctx := errgroup.WithContext(ctx)
	for range d.cfg.Workers {
		g.Go(func() error {
			for j := range d.queue {
				d.deliver(ctx, j)
			}
			return nil
		})
	}
	return g.Wait()
}

// Pending returns the number of queued notifications.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Close stops accepting notifications. Run returns once the queue drains.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, j job) {
	lg := d.lg.With(
		zap.String("channel", string(j.channel)),
		zap.String("order", j.order.Number),
		zap.String("status", string(j.order.Status)),
	)

	op, err := d.operation(j)
	if err != nil {
		d.fail(ctx, lg, j, err)
		return
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.cfg.InitialBackoff
	b.MaxInterval = d.cfg.MaxBackoff
	b.MaxElapsedTime = 0

	attempt := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
		return op(attemptCtx)
	}
	notify := func(err error, next time.Duration) {
		lg.Warn("Notification attempt failed", zap.Error(err), zap.Duration("retry_in", next))
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(d.cfg.MaxRetries)), ctx)
	if err := backoff.RetryNotify(attempt, policy, notify); err != nil {
		d.fail(ctx, lg, j, err)
		return
	}
	lg.Debug("Notification delivered")
}

func (d *Dispatcher) fail(ctx context.Context, lg *zap.Logger, j job, err error) {
	d.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", string(j.channel))))
	lg.Error("Notification failed", zap.Error(err))
}

// operation prepares the delivery for j. Preparation errors such as a
// failed invoice render are not retried.
func (d *Dispatcher) operation(j job) (func(ctx context.Context) error, error) {
	o := j.order
	switch j.channel {
	case ChannelSMS:
		text := SMSText(o)
		return func(ctx context.Context) error {
			return d.deps.SMS.SendSMS(ctx, o.Phone, text)
		}, nil
	case ChannelEmail:
		e := Email{
			To:       o.Email,
			Subject:  InvoiceSubject(o),
			HTMLBody: InvoiceBody(o),
		}
		if d.deps.Invoices != nil {
			pdf, err := d.deps.Invoices.Render(o)
			if err != nil {
				return nil, errors.Wrap(err, "render invoice")
			}
			e.Attachments = []Attachment{{
				Name:        InvoiceFilename(o),
				ContentType: "application/pdf",
				Data:        pdf,
			}}
		}
		return func(ctx context.Context) error {
			return d.deps.Email.SendEmail(ctx, e)
		}, nil
	case ChannelEvent:
		return func(ctx context.Context) error {
			return d.deps.Events.PublishOrder(ctx, o)
		}, nil
	default:
		return nil, errors.Errorf("unknown channel %q", j.channel)
	}
}
