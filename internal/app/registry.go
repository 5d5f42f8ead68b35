package app

import (
	"log/slog"
	"sync"
	"time"

	"contest-engine/internal/clock"
	"contest-engine/internal/domain"
)

// Registry owns the live rooms, at most one per contest ID, and evicts
// finished rooms after a grace period so late snapshot reads still succeed.
type Registry struct {
	rooms  RoomRepository
	clock  clock.Clock
	grace  time.Duration
	logger *slog.Logger

	mu        sync.Mutex
	evictions map[string]clock.Timer
	onEvict   func(contestID string)
}

func NewRegistry(rooms RoomRepository, clk clock.Clock, grace time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		rooms:     rooms,
		clock:     clk,
		grace:     grace,
		logger:    logger,
		evictions: make(map[string]clock.Timer),
	}
}

// Register adds a room; a second room for the same contest is rejected.
func (g *Registry) Register(room *Room) error {
	return g.rooms.Add(room)
}

// Lookup routes a command to the room serving contestID.
func (g *Registry) Lookup(contestID string) (*Room, error) {
	room, ok := g.rooms.Get(contestID)
	if !ok {
		return nil, domain.ErrContestNotFound
	}
	return room, nil
}

// LookupCode resolves a private code to its room.
func (g *Registry) LookupCode(code string) (*Room, error) {
	contestID, ok := g.rooms.ResolveCode(code)
	if !ok {
		return nil, domain.ErrContestNotFound
	}
	return g.Lookup(contestID)
}

// Len reports the number of live rooms.
func (g *Registry) Len() int {
	return g.rooms.Len()
}

// ScheduleEviction drops the room after the grace period. Repeated calls
// for the same contest keep the first schedule.
func (g *Registry) ScheduleEviction(contestID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.evictions[contestID]; ok {
		return
	}
	g.evictions[contestID] = g.clock.AfterFunc(g.grace, func() { g.evict(contestID) })
}

func (g *Registry) evict(contestID string) {
	g.mu.Lock()
	delete(g.evictions, contestID)
	onEvict := g.onEvict
	g.mu.Unlock()

	g.rooms.Remove(contestID)
	if onEvict != nil {
		onEvict(contestID)
	}
	g.logger.Debug("room evicted", "contest_id", contestID)
}

// Close stops pending evictions.
func (g *Registry) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, t := range g.evictions {
		t.Stop()
		delete(g.evictions, id)
	}
}
