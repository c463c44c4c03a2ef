package dcom

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"

	"github.com/MultiSerb/scadabraboooo/internal/model"
	"github.com/MultiSerb/scadabraboooo/internal/modbus"
)

// Transport exchanges raw Modbus-TCP frames with the device.
type Transport interface {
	Send(ctx context.Context, frame []byte) error
	Receive(ctx context.Context) ([]byte, error)
}

// FailureObserver is told about every command that did not complete.
type FailureObserver interface {
	CommandFailed(p modbus.CommandParameters, err error)
}

var errExecutorStopped = errors.New("executor stopped")

type command struct {
	fn   modbus.Function
	done chan error // nil for fire-and-forget commands
}

// Executor drains a FIFO queue of commands, one in flight at a time.
// Each response is matched to its command by transaction id, parsed, and
// every parsed value is sent on the updates channel.
type Executor struct {
	transport Transport
	queue     chan command
	updates   chan<- model.PointUpdate
	observer  FailureObserver
	metrics   *Metrics
	logger    *log.Logger
}

func NewExecutor(t Transport, updates chan<- model.PointUpdate, queueSize int, observer FailureObserver, m *Metrics, logger *log.Logger) (*Executor, error) {
	if t == nil {
		return nil, errors.New("transport is nil")
	}
	if updates == nil {
		return nil, errors.New("updates channel is nil")
	}
	if queueSize < 1 {
		queueSize = 64
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Executor{
		transport: t,
		queue:     make(chan command, queueSize),
		updates:   updates,
		observer:  observer,
		metrics:   m,
		logger:    logger,
	}, nil
}

// EnqueueCommand queues fn without waiting for its outcome. Failures are
// logged and dropped. It blocks while the queue is full.
func (e *Executor) EnqueueCommand(ctx context.Context, fn modbus.Function) error {
	return e.enqueue(ctx, command{fn: fn})
}

// ExecuteCommand queues fn and waits until it completes, returning the
// transport, malformed-response or device exception error of that command.
func (e *Executor) ExecuteCommand(ctx context.Context, fn modbus.Function) error {
	cmd := command{fn: fn, done: make(chan error, 1)}
	if err := e.enqueue(ctx, cmd); err != nil {
		return err
	}
	select {
	case err := <-cmd.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) enqueue(ctx context.Context, cmd command) error {
	if cmd.fn == nil {
		return fmt.Errorf("%w: nil function", modbus.ErrInvalidParameters)
	}
	select {
	case e.queue <- cmd:
		e.metrics.setQueueDepth(len(e.queue))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains the queue until ctx is cancelled. A failing command never stops
// the loop.
func (e *Executor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			e.abortPending()
			return ctx.Err()
		case cmd := <-e.queue:
			e.metrics.setQueueDepth(len(e.queue))
			if ctx.Err() != nil {
				if cmd.done != nil {
					cmd.done <- ctx.Err()
				}
				continue
			}
			err := e.execute(ctx, cmd.fn)
			if err != nil && ctx.Err() != nil {
				// teardown, not a command failure
				if cmd.done != nil {
					cmd.done <- ctx.Err()
				}
				continue
			}
			e.finish(cmd, err)
		}
	}
}

func (e *Executor) finish(cmd command, err error) {
	p := cmd.fn.Parameters()
	e.metrics.commandDone(p.FunctionCode, err)
	if err != nil && e.observer != nil {
		e.observer.CommandFailed(p, err)
	}
	if cmd.done != nil {
		cmd.done <- err
		return
	}
	if err != nil {
		e.logger.Printf("executor: %v tx=%d dropped: %v", p.FunctionCode, p.TransactionID, err)
	}
}

// abortPending fails queued commands whose callers are still waiting.
func (e *Executor) abortPending() {
	for {
		select {
		case cmd := <-e.queue:
			if cmd.done != nil {
				cmd.done <- errExecutorStopped
			}
		default:
			e.metrics.setQueueDepth(0)
			return
		}
	}
}

func (e *Executor) execute(ctx context.Context, fn modbus.Function) error {
	p := fn.Parameters()
	if err := e.transport.Send(ctx, fn.PackRequest()); err != nil {
		return err
	}
	for {
		resp, err := e.transport.Receive(ctx)
		if err != nil {
			return err
		}
		txid, ok := modbus.TransactionID(resp)
		if !ok || txid != p.TransactionID {
			e.metrics.responseDiscarded()
			e.logger.Printf("executor: discarding response tx=%d, waiting for tx=%d", txid, p.TransactionID)
			continue
		}
		values, err := fn.ParseResponse(resp)
		if err != nil {
			return err
		}
		return e.publish(ctx, values)
	}
}

// publish emits parsed values in identifier order.
func (e *Executor) publish(ctx context.Context, values map[model.PointIdentifier]uint16) error {
	ids := make([]model.PointIdentifier, 0, len(values))
	for id := range values {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, comparePointIDs)
	for _, id := range ids {
		u := model.PointUpdate{Type: id.Type, Address: id.Address, Value: values[id]}
		select {
		case e.updates <- u:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// QueueLen reports how many commands are waiting.
func (e *Executor) QueueLen() int { return len(e.queue) }
