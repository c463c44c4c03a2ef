package dcom

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MultiSerb/scadabraboooo/internal/model"
)

// ErrUnknownPoint means a lookup used an identifier that was never configured.
var ErrUnknownPoint = errors.New("unknown point")

// Storage holds exactly one Point per configured identifier. Readers get
// copies, so a snapshot is never observed half-updated.
type Storage struct {
	mu     sync.RWMutex
	points map[model.PointIdentifier]*model.Point
}

// NewStorage creates a point for every address covered by items.
func NewStorage(items []*model.ConfigItem) (*Storage, error) {
	s := &Storage{points: make(map[model.PointIdentifier]*model.Point)}
	for _, item := range items {
		for _, id := range item.Identifiers() {
			if _, dup := s.points[id]; dup {
				return nil, fmt.Errorf("point %v configured twice", id)
			}
			s.points[id] = &model.Point{
				ID:         id,
				ConfigItem: item,
				Alarm:      model.NoAlarm,
			}
		}
	}
	return s, nil
}

// GetPoints returns snapshots in the order of ids, duplicates included.
func (s *Storage) GetPoints(ids []model.PointIdentifier) ([]model.Point, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Point, 0, len(ids))
	for _, id := range ids {
		p, ok := s.points[id]
		if !ok {
			return nil, fmt.Errorf("%w: %v", ErrUnknownPoint, id)
		}
		out = append(out, *p)
	}
	return out, nil
}

// Has reports whether id is configured.
func (s *Storage) Has(id model.PointIdentifier) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.points[id]
	return ok
}

// Identifiers lists every configured identifier, sorted by type then address.
func (s *Storage) Identifiers() []model.PointIdentifier {
	s.mu.RLock()
	out := make([]model.PointIdentifier, 0, len(s.points))
	for id := range s.points {
		out = append(out, id)
	}
	s.mu.RUnlock()
	slices.SortFunc(out, comparePointIDs)
	return out
}

// update applies fn to the point under the write lock and returns the
// snapshots from before and after.
func (s *Storage) update(id model.PointIdentifier, fn func(p *model.Point)) (before, after model.Point, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.points[id]
	if !ok {
		return before, after, fmt.Errorf("%w: %v", ErrUnknownPoint, id)
	}
	before = *p
	fn(p)
	return before, *p, nil
}

func comparePointIDs(a, b model.PointIdentifier) int {
	if a.Type != b.Type {
		if a.Type < b.Type {
			return -1
		}
		return 1
	}
	return int(a.Address) - int(b.Address)
}
