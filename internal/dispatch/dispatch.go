// Package dispatch runs inbound messages through the conversation engine on
// a bounded worker pool, serializing turns per sender so concurrent webhook
// deliveries from one phone cannot interleave history updates.
package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/luisrosales852/rodirogRengifoAgente/internal/flow"
	"github.com/luisrosales852/rodirogRengifoAgente/internal/messaging"
	"github.com/luisrosales852/rodirogRengifoAgente/internal/models"
)

// Defaults for the dispatcher pool.
const (
	DefaultQueueSize = 256
	DefaultWorkers   = 8
)

// Task is one inbound message awaiting processing. From identifies the
// sender (the conversation key), To the business number that received it.
type Task struct {
	From string
	To   string
	Text string
}

// Processor produces the engine reply for one inbound message.
type Processor interface {
	ProcessResponse(ctx context.Context, phoneNumber, userMessage string) (string, error)
}

// Dispatcher owns the task queue and worker pool.
type Dispatcher struct {
	processor Processor
	deliverer *messaging.Deliverer

	queue   chan Task
	workers int

	mu      sync.Mutex
	senders map[string]*sync.Mutex

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// Opts holds dispatcher pool configuration.
type Opts struct {
	QueueSize int
	Workers   int
}

// Option defines a configuration option for the dispatcher.
type Option func(*Opts)

// WithQueueSize sets the bounded queue capacity.
func WithQueueSize(n int) Option {
	return func(o *Opts) { o.QueueSize = n }
}

// WithWorkers sets the number of worker goroutines.
func WithWorkers(n int) Option {
	return func(o *Opts) { o.Workers = n }
}

// NewDispatcher creates a dispatcher over the given engine and deliverer.
func NewDispatcher(processor Processor, deliverer *messaging.Deliverer, opts ...Option) *Dispatcher {
	cfg := Opts{QueueSize: DefaultQueueSize, Workers: DefaultWorkers}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	return &Dispatcher{
		processor: processor,
		deliverer: deliverer,
		queue:     make(chan Task, cfg.QueueSize),
		workers:   cfg.Workers,
		senders:   make(map[string]*sync.Mutex),
	}
}

// Start launches the worker pool. Workers run until Stop is called.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
	slog.Info("Dispatcher.Start: worker pool running", "workers", d.workers, "queue_size", cap(d.queue))
}

// Stop cancels in-flight work and waits for the workers to drain.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	close(d.queue)
	d.wg.Wait()
	slog.Info("Dispatcher.Stop: worker pool stopped")
}

// Enqueue adds a task without blocking. When the queue is full the task is
// dropped and ErrQueueFull returned; the webhook caller still acknowledges
// so the gateway does not retry into an already saturated instance.
func (d *Dispatcher) Enqueue(task Task) error {
	select {
	case d.queue <- task:
		return nil
	default:
		slog.Warn("Dispatcher.Enqueue: queue full, dropping inbound message", "from", task.From)
		return models.ErrQueueFull
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-d.queue:
			if !ok {
				return
			}
			d.handle(ctx, task)
		}
	}
}

// senderLock returns the mutex serializing one sender's turns.
func (d *Dispatcher) senderLock(from string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	lock, ok := d.senders[from]
	if !ok {
		lock = &sync.Mutex{}
		d.senders[from] = lock
	}
	return lock
}

// handle runs one inbound message through the engine and delivers the reply.
// Engine failures produce a single apology message instead of silence.
func (d *Dispatcher) handle(ctx context.Context, task Task) {
	lock := d.senderLock(task.From)
	lock.Lock()
	defer lock.Unlock()

	response, err := d.processor.ProcessResponse(ctx, task.From, task.Text)
	if err != nil {
		slog.Error("Dispatcher.handle: engine processing failed", "from", task.From, "error", err)
		response = flow.ApologyMessage
	}
	if response == "" {
		slog.Debug("Dispatcher.handle: empty response, nothing to deliver", "from", task.From)
		return
	}

	if err := d.deliverer.DeliverResponse(ctx, task.From, task.To, response); err != nil {
		slog.Error("Dispatcher.handle: delivery failed", "from", task.From, "error", err)
	}
}
