// Package notify delivers fire-and-forget notifications about serial changes.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Event names a kind of notification.
type Event string

const (
	EventCustomerMapped   Event = "customer_mapped"
	EventSerialReassigned Event = "serial_reassigned"
	EventSplitShared      Event = "split_shared"
	EventRecovered        Event = "recovered"
)

// Message is one notification.
type Message struct {
	Event  Event
	Serial string
	Indent string
	Text   string
}

// Key identifies the message for cooldown purposes.
func (m Message) Key() string {
	return string(m.Event) + "|" + m.Serial + "|" + m.Indent
}

// Notifier delivers messages. Failures never affect the operation that triggered them.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Nop discards every message.
type Nop struct{}

func (Nop) Notify(context.Context, Message) error { return nil }

// LogNotifier writes messages to a zap logger.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier that only logs.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notify")}
}

func (n *LogNotifier) Notify(_ context.Context, msg Message) error {
	n.logger.Info("notification",
		zap.String("event", string(msg.Event)),
		zap.String("serial", msg.Serial),
		zap.String("indent", msg.Indent),
		zap.String("text", msg.Text))
	return nil
}

// Multi fans a message out to several notifiers concurrently.
type Multi struct {
	notifiers []Notifier
	limit     int
}

// NewMulti creates a fan-out notifier running at most limit deliveries at once.
func NewMulti(limit int, notifiers ...Notifier) *Multi {
	if limit <= 0 {
		limit = len(notifiers)
	}
	return &Multi{notifiers: notifiers, limit: limit}
}

// Notify delivers to every notifier and returns the first error.
func (m *Multi) Notify(ctx context.Context, msg Message) error {
	g, ctx := errgroup.WithContext(ctx)
	if m.limit > 0 {
		g.SetLimit(m.limit)
	}
	for _, n := range m.notifiers {
		n := n
		g.Go(func() error {
			return n.Notify(ctx, msg)
		})
	}
	return g.Wait()
}

// Dispatcher sends messages in the background so callers never wait on delivery.
type Dispatcher struct {
	notifier Notifier
	logger   *zap.Logger
	timeout  time.Duration
	queue    chan Message
	done     chan struct{}
}

// NewDispatcher starts a background sender with the given queue size.
func NewDispatcher(n Notifier, logger *zap.Logger, queueSize int, timeout time.Duration) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 64
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	d := &Dispatcher{
		notifier: n,
		logger:   logger.Named("dispatcher"),
		timeout:  timeout,
		queue:    make(chan Message, queueSize),
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

// Send queues msg. When the queue is full the message is dropped and logged.
func (d *Dispatcher) Send(msg Message) {
	select {
	case d.queue <- msg:
	default:
		d.logger.Warn("notification queue full, dropping message",
			zap.String("event", string(msg.Event)),
			zap.String("serial", msg.Serial))
	}
}

// Close drains the queue and stops the sender.
func (d *Dispatcher) Close() {
	close(d.queue)
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for msg := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.notifier.Notify(ctx, msg); err != nil {
			d.logger.Warn("notification failed",
				zap.String("event", string(msg.Event)),
				zap.String("serial", msg.Serial),
				zap.Error(err))
		}
		cancel()
	}
}
