package dcom

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/MultiSerb/scadabraboooo/internal/model"
	"github.com/MultiSerb/scadabraboooo/internal/modbus"
)

// fakeTransport answers each sent frame with the frames respond returns.
type fakeTransport struct {
	respond func(req []byte) ([][]byte, error)

	mu     sync.Mutex
	sent   [][]byte
	frames chan []byte
}

func newFakeTransport(respond func(req []byte) ([][]byte, error)) *fakeTransport {
	return &fakeTransport{respond: respond, frames: make(chan []byte, 16)}
}

func (f *fakeTransport) Send(_ context.Context, frame []byte) error {
	f.mu.Lock()
	f.sent = append(f.sent, append([]byte(nil), frame...))
	f.mu.Unlock()
	resps, err := f.respond(frame)
	if err != nil {
		return err
	}
	for _, r := range resps {
		f.frames <- r
	}
	return nil
}

func (f *fakeTransport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case r := <-f.frames:
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type failureLog struct {
	mu   sync.Mutex
	errs []error
}

func (l *failureLog) CommandFailed(_ modbus.CommandParameters, err error) {
	l.mu.Lock()
	l.errs = append(l.errs, err)
	l.mu.Unlock()
}

func (l *failureLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errs)
}

func txidOf(req []byte) uint16 {
	id, _ := modbus.TransactionID(req)
	return id
}

func readHolding(t *testing.T, txid, start, n uint16) modbus.Function {
	t.Helper()
	fn, err := modbus.NewFunction(modbus.NewReadParameters(modbus.RequestLength, modbus.FCReadHoldingRegisters, start, n, txid, 1))
	if err != nil {
		t.Fatal(err)
	}
	return fn
}

func startExecutor(t *testing.T, tr Transport, obs FailureObserver, m *Metrics) (*Executor, chan model.PointUpdate) {
	t.Helper()
	updates := make(chan model.PointUpdate, 32)
	e, err := NewExecutor(tr, updates, 8, obs, m, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return e, updates
}

func TestExecutor_publishesSortedValues(t *testing.T) {
	tr := newFakeTransport(func(req []byte) ([][]byte, error) {
		return [][]byte{reply(txidOf(req), modbus.FCReadHoldingRegisters, 6, 0, 1, 0, 2, 0, 3)}, nil
	})
	e, updates := startExecutor(t, tr, nil, nil)

	if err := e.ExecuteCommand(context.Background(), readHolding(t, 5, 100, 3)); err != nil {
		t.Fatal(err)
	}
	for i, want := range []uint16{1, 2, 3} {
		u := <-updates
		if u.Type != model.AnalogOutput || u.Address != uint16(100+i) || u.Value != want {
			t.Errorf("update %d: %+v", i, u)
		}
	}
}

func TestExecutor_discardsStaleTransactions(t *testing.T) {
	tr := newFakeTransport(func(req []byte) ([][]byte, error) {
		id := txidOf(req)
		return [][]byte{
			reply(id+100, modbus.FCReadHoldingRegisters, 2, 0xFF, 0xFF),
			reply(id, modbus.FCReadHoldingRegisters, 2, 0, 42),
		}, nil
	})
	m := NewMetrics(prometheus.NewRegistry())
	e, updates := startExecutor(t, tr, nil, m)

	if err := e.ExecuteCommand(context.Background(), readHolding(t, 9, 10, 1)); err != nil {
		t.Fatal(err)
	}
	if u := <-updates; u.Value != 42 {
		t.Fatalf("stale response was applied: %+v", u)
	}
	if got := testutil.ToFloat64(m.discarded); got != 1 {
		t.Errorf("discarded %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.commands.WithLabelValues(modbus.FCReadHoldingRegisters.String(), "ok")); got != 1 {
		t.Errorf("ok commands %v, want 1", got)
	}
	select {
	case u := <-updates:
		t.Errorf("unexpected extra update %+v", u)
	default:
	}
}

func TestExecutor_failureAbortsOnlyThatCommand(t *testing.T) {
	sendErr := errors.New("link down")
	tr := newFakeTransport(func(req []byte) ([][]byte, error) {
		id := txidOf(req)
		switch id {
		case 1:
			return [][]byte{reply(id, modbus.FCReadHoldingRegisters, 4, 0, 1)}, nil // short data
		case 2:
			return [][]byte{reply(id, modbus.FCReadHoldingRegisters|0x80, 0x02)}, nil
		case 3:
			return nil, sendErr
		}
		return [][]byte{reply(id, modbus.FCReadHoldingRegisters, 2, 0, 7)}, nil
	})
	failures := &failureLog{}
	e, updates := startExecutor(t, tr, failures, nil)
	ctx := context.Background()

	if err := e.ExecuteCommand(ctx, readHolding(t, 1, 0, 2)); !errors.Is(err, modbus.ErrMalformedResponse) {
		t.Errorf("tx 1: got %v, want ErrMalformedResponse", err)
	}
	var exc *modbus.ExceptionError
	if err := e.ExecuteCommand(ctx, readHolding(t, 2, 0, 1)); !errors.As(err, &exc) || exc.Code != 0x02 {
		t.Errorf("tx 2: got %v, want illegal data address exception", err)
	}
	if err := e.ExecuteCommand(ctx, readHolding(t, 3, 0, 1)); !errors.Is(err, sendErr) {
		t.Errorf("tx 3: got %v, want %v", err, sendErr)
	}
	if err := e.ExecuteCommand(ctx, readHolding(t, 4, 0, 1)); err != nil {
		t.Fatalf("tx 4: %v", err)
	}
	if u := <-updates; u.Value != 7 {
		t.Errorf("update %+v", u)
	}
	if got := failures.count(); got != 3 {
		t.Errorf("%d failures observed, want 3", got)
	}
}

func TestExecutor_rejectsRegistersBeyondRequest(t *testing.T) {
	tr := newFakeTransport(func(req []byte) ([][]byte, error) {
		id := txidOf(req)
		if id == 1 {
			return [][]byte{reply(id, modbus.FCReadHoldingRegisters, 4, 0, 10, 0, 11)}, nil
		}
		return [][]byte{reply(id, modbus.FCReadHoldingRegisters, 2, 0, 12)}, nil
	})
	failures := &failureLog{}
	e, updates := startExecutor(t, tr, failures, nil)
	ctx := context.Background()

	if err := e.ExecuteCommand(ctx, readHolding(t, 1, 2000, 1)); !errors.Is(err, modbus.ErrMalformedResponse) {
		t.Fatalf("got %v, want ErrMalformedResponse", err)
	}
	select {
	case u := <-updates:
		t.Fatalf("oversized reply published %+v", u)
	default:
	}
	if err := e.ExecuteCommand(ctx, readHolding(t, 2, 2000, 1)); err != nil {
		t.Fatal(err)
	}
	if u := <-updates; u.Address != 2000 || u.Value != 12 {
		t.Errorf("update %+v", u)
	}
	if got := failures.count(); got != 1 {
		t.Errorf("%d failures observed, want 1", got)
	}
}

func TestExecutor_fifoOrder(t *testing.T) {
	tr := newFakeTransport(func(req []byte) ([][]byte, error) {
		id := txidOf(req)
		return [][]byte{reply(id, modbus.FCReadHoldingRegisters, 2, 0, byte(id))}, nil
	})
	e, updates := startExecutor(t, tr, nil, nil)
	ctx := context.Background()
	for id := uint16(1); id <= 5; id++ {
		if err := e.EnqueueCommand(ctx, readHolding(t, id, id, 1)); err != nil {
			t.Fatal(err)
		}
	}
	for id := uint16(1); id <= 5; id++ {
		select {
		case u := <-updates:
			if u.Address != id || u.Value != id {
				t.Fatalf("got %+v, want address %d", u, id)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for updates")
		}
	}
}

func TestExecutor_nilFunction(t *testing.T) {
	e, err := NewExecutor(newFakeTransport(nil), make(chan model.PointUpdate), 1, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.EnqueueCommand(context.Background(), nil); !errors.Is(err, modbus.ErrInvalidParameters) {
		t.Fatalf("got %v", err)
	}
	if _, err := NewExecutor(nil, make(chan model.PointUpdate), 1, nil, nil, nil); err == nil {
		t.Error("nil transport must be rejected")
	}
}

func TestExecutor_cancelUnblocksPendingCommand(t *testing.T) {
	// never answers
	tr := newFakeTransport(func([]byte) ([][]byte, error) { return nil, nil })
	updates := make(chan model.PointUpdate, 1)
	e, err := NewExecutor(tr, updates, 4, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- e.Run(ctx) }()

	cmdDone := make(chan error, 1)
	go func() { cmdDone <- e.ExecuteCommand(context.Background(), readHolding(t, 1, 0, 1)) }()

	deadline := time.Now().Add(2 * time.Second)
	for tr.sentCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-runDone:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	select {
	case err := <-cmdDone:
		if err == nil {
			t.Error("pending command reported success")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending command never completed")
	}
}
