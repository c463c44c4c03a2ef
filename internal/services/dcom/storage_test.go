package dcom

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/MultiSerb/scadabraboooo/internal/model"
)

func TestNewStorage(t *testing.T) {
	s := newTestStorage(t,
		digitalItem("coils", model.DigitalOutput, 10, 3),
		analogItem("hr", model.AnalogOutput, 10, 1, 1, 0, 0, 100),
	)
	got := s.Identifiers()
	want := []model.PointIdentifier{
		{Type: model.AnalogOutput, Address: 10},
		{Type: model.DigitalOutput, Address: 10},
		{Type: model.DigitalOutput, Address: 11},
		{Type: model.DigitalOutput, Address: 12},
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("identifiers %v, want %v", got, want)
	}
	p := getPoint(t, s, want[2])
	if p.ConfigItem == nil || p.ConfigItem.Name != "coils" || p.Alarm != model.NoAlarm {
		t.Errorf("unexpected initial point %+v", p)
	}
}

func TestNewStorage_duplicate(t *testing.T) {
	_, err := NewStorage([]*model.ConfigItem{
		digitalItem("a", model.DigitalOutput, 0, 4),
		digitalItem("b", model.DigitalOutput, 3, 2),
	})
	if err == nil {
		t.Fatal("overlapping items must be rejected")
	}
}

func TestStorage_GetPoints(t *testing.T) {
	s := newTestStorage(t, digitalItem("t", model.DigitalOutput, 0, 3))
	a := model.NewPointIdentifier(model.DigitalOutput, 2)
	b := model.NewPointIdentifier(model.DigitalOutput, 0)
	setRaw(t, s, a, 1)

	ps, err := s.GetPoints([]model.PointIdentifier{a, b, a})
	if err != nil {
		t.Fatal(err)
	}
	if len(ps) != 3 || ps[0].ID != a || ps[1].ID != b || ps[2].ID != a {
		t.Fatalf("order not preserved: %+v", ps)
	}
	if !ps[0].IsOn() || ps[1].IsOn() {
		t.Errorf("states: %s %s", ps[0].State, ps[1].State)
	}

	// snapshots are copies
	ps[0].RawValue = 99
	if getPoint(t, s, a).RawValue != 1 {
		t.Error("snapshot mutation leaked into the store")
	}

	_, err = s.GetPoints([]model.PointIdentifier{a, model.NewPointIdentifier(model.AnalogInput, 0)})
	if !errors.Is(err, ErrUnknownPoint) {
		t.Fatalf("got %v, want ErrUnknownPoint", err)
	}
}

func TestStorage_concurrentUpdates(t *testing.T) {
	s := newTestStorage(t, analogItem("ai", model.AnalogInput, 0, 4, 1, 0, 0, 1000))
	ids := s.Identifiers()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := ids[(w+i)%len(ids)]
				if _, _, err := s.update(id, func(p *model.Point) { processPoint(p, uint16(i), testTime) }); err != nil {
					t.Error(err)
					return
				}
				if _, err := s.GetPoints(ids); err != nil {
					t.Error(err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	for _, p := range mustPoints(t, s, ids) {
		if p.EguValue != float64(p.RawValue) {
			t.Errorf("%v: egu %v out of step with raw %d", p.ID, p.EguValue, p.RawValue)
		}
	}
}

func mustPoints(t *testing.T, s *Storage, ids []model.PointIdentifier) []model.Point {
	t.Helper()
	ps, err := s.GetPoints(ids)
	if err != nil {
		t.Fatal(err)
	}
	return ps
}
