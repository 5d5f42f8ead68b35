package memory

import (
	"context"
	"sort"
	"sync"

	"contest-engine/internal/domain"
)

// Storage keeps persisted records in memory. It implements app.Storage and
// app.Checkpointer for tests and single-process demos.
type Storage struct {
	mu      sync.RWMutex
	answers []domain.AnswerRecord
	results map[string]domain.ContestResult
	refunds []domain.RefundOrder
	states  map[string]domain.RoomState
}

func NewStorage() *Storage {
	return &Storage{
		results: make(map[string]domain.ContestResult),
		states:  make(map[string]domain.RoomState),
	}
}

func (s *Storage) PersistAnswer(_ context.Context, record domain.AnswerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers = append(s.answers, record)
	return nil
}

func (s *Storage) PersistContestResult(_ context.Context, result domain.ContestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.Contest.ID] = result
	return nil
}

func (s *Storage) PersistRefund(_ context.Context, order domain.RefundOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refunds = append(s.refunds, order)
	return nil
}

func (s *Storage) SaveRoomState(_ context.Context, state domain.RoomState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.Contest.ID] = state
	return nil
}

func (s *Storage) DeleteRoomState(_ context.Context, contestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, contestID)
	return nil
}

func (s *Storage) LoadRoomStates(_ context.Context) ([]domain.RoomState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	states := make([]domain.RoomState, 0, len(s.states))
	for _, state := range s.states {
		states = append(states, state)
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].Contest.ID < states[j].Contest.ID
	})
	return states, nil
}

// Answers returns the persisted answers of a contest in persistence order.
func (s *Storage) Answers(contestID string) []domain.AnswerRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.AnswerRecord
	for _, a := range s.answers {
		if a.ContestID == contestID {
			out = append(out, a)
		}
	}
	return out
}

// Result returns the persisted result of a contest.
func (s *Storage) Result(contestID string) (domain.ContestResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.results[contestID]
	return result, ok
}

// Refunds returns the refund orders of a contest.
func (s *Storage) Refunds(contestID string) []domain.RefundOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.RefundOrder
	for _, r := range s.refunds {
		if r.ContestID == contestID {
			out = append(out, r)
		}
	}
	return out
}

// RoomState returns the last checkpoint of a contest.
func (s *Storage) RoomState(contestID string) (domain.RoomState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[contestID]
	return state, ok
}
