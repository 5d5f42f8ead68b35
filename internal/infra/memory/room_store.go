package memory

import (
	"sync"

	"contest-engine/internal/app"
	"contest-engine/internal/domain"
)

// RoomStore is an in-memory implementation of app.RoomRepository.
type RoomStore struct {
	mu    sync.RWMutex
	rooms map[string]*app.Room
	codes map[string]string
}

func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms: make(map[string]*app.Room),
		codes: make(map[string]string),
	}
}

func (s *RoomStore) Add(room *app.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.ID()]; ok {
		return domain.ErrRoomExists
	}
	s.rooms[room.ID()] = room
	return nil
}

func (s *RoomStore) Get(contestID string) (*app.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[contestID]
	return room, ok
}

func (s *RoomStore) Remove(contestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, contestID)
	for code, id := range s.codes {
		if id == contestID {
			delete(s.codes, code)
		}
	}
}

func (s *RoomStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

func (s *RoomStore) ReserveCode(code, contestID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if owner, taken := s.codes[code]; taken && owner != contestID {
		return false, nil
	}
	s.codes[code] = contestID
	return true, nil
}

func (s *RoomStore) ResolveCode(code string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.codes[code]
	return id, ok
}

func (s *RoomStore) ReleaseCode(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.codes, code)
}
