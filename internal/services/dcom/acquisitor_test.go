package dcom

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MultiSerb/scadabraboooo/internal/model"
)

type readCall struct {
	name         string
	start, count uint16
	txid         uint16
}

type fakeReader struct {
	mu    sync.Mutex
	calls []readCall
	err   error
}

func (f *fakeReader) ExecuteReadCommand(_ context.Context, cfg *model.ConfigItem, txid uint16, _ uint8, start, count uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, readCall{cfg.Name, start, count, txid})
	return f.err
}

func (f *fakeReader) byName(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.name == name {
			n++
		}
	}
	return n
}

func testConfig(t *testing.T, items ...*model.ConfigItem) *Configuration {
	t.Helper()
	c, err := NewConfiguration(items, 1)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestAcquisitor_intervals(t *testing.T) {
	every := digitalItem("every", model.DigitalOutput, 0, 2)
	third := analogItem("third", model.AnalogInput, 10, 4, 1, 0, 0, 100)
	third.AcquisitionInterval = 3
	reader := &fakeReader{}
	a, err := NewAcquisitor(make(chan struct{}), reader, testConfig(t, every, third), nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	for tick := 1; tick <= 9; tick++ {
		a.tick(ctx)
		if got, want := reader.byName("third"), tick/3; got != want {
			t.Fatalf("after %d ticks: %d reads of third, want %d", tick, got, want)
		}
	}
	if got := reader.byName("every"); got != 9 {
		t.Errorf("%d reads of every, want 9", got)
	}
	if third.SecondsPassedSinceLastPoll != 0 {
		t.Errorf("counter %d after 9 ticks, want 0", third.SecondsPassedSinceLastPoll)
	}
	for _, c := range reader.calls {
		if c.name == "third" && (c.start != 10 || c.count != 4) {
			t.Errorf("read %+v", c)
		}
	}
}

func TestAcquisitor_readErrorResetsCounter(t *testing.T) {
	item := digitalItem("t", model.DigitalOutput, 0, 1)
	item.AcquisitionInterval = 2
	reader := &fakeReader{err: errors.New("queue closed")}
	a, err := NewAcquisitor(make(chan struct{}), reader, testConfig(t, item), nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		a.tick(context.Background())
	}
	if got := reader.byName("t"); got != 2 {
		t.Errorf("%d reads, want 2", got)
	}
}

func TestAcquisitor_runOneTickPerSignal(t *testing.T) {
	item := digitalItem("t", model.DigitalOutput, 0, 1)
	item.AcquisitionInterval = 3
	reader := &fakeReader{}
	trigger := make(chan struct{})
	a, err := NewAcquisitor(trigger, reader, testConfig(t, item), nil)
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()

	for i := 0; i < 6; i++ {
		trigger <- struct{}{}
	}
	close(trigger)
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v after the trigger closed", err)
	}
	if got := reader.byName("t"); got != 2 {
		t.Errorf("%d reads after 6 signals, want 2", got)
	}
}

func TestAcquisitor_cancelUnblocksWait(t *testing.T) {
	a, err := NewAcquisitor(make(chan struct{}), &fakeReader{}, testConfig(t, digitalItem("t", model.DigitalOutput, 0, 1)), nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewTicker_closesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := NewTicker(ctx, time.Millisecond)
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("no tick")
	}
	cancel()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("ticker channel not closed")
		}
	}
}
