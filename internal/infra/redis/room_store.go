package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"contest-engine/internal/app"
	"contest-engine/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RoomStore is a Redis-aware implementation of app.RoomRepository.
//   - Rooms live in a local map; the room state machine runs in-process.
//   - Redis holds an ownership key per contest so two instances never serve
//     the same contest, and the private code index so any instance can
//     resolve a code.
type RoomStore struct {
	client   *redis.Client
	ttl      time.Duration
	instance string

	mu    sync.RWMutex
	rooms map[string]*app.Room
}

func NewRoomStore(client *redis.Client, ttl time.Duration, instance string) *RoomStore {
	return &RoomStore{
		client:   client,
		ttl:      ttl,
		instance: instance,
		rooms:    make(map[string]*app.Room),
	}
}

func (s *RoomStore) Add(room *app.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.ID()]; ok {
		return domain.ErrRoomExists
	}

	ctx := context.Background()
	key := ownerKey(room.ID())
	ok, err := s.client.SetNX(ctx, key, s.instance, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("claim room %s: %w", room.ID(), err)
	}
	if !ok {
		// A restart of this instance may find its own claim still alive.
		owner, err := s.client.Get(ctx, key).Result()
		if err != nil || owner != s.instance {
			return domain.ErrRoomExists
		}
		_ = s.client.Expire(ctx, key, s.ttl).Err()
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
	room, ok := s.rooms[contestID]
	if !ok {
		return
	}
	delete(s.rooms, contestID)

	ctx := context.Background()
	pipe := s.client.Pipeline()
	pipe.Del(ctx, ownerKey(contestID))
	if code := room.Contest().PrivateCode; code != "" {
		pipe.Del(ctx, codeKey(code))
	}
	_, _ = pipe.Exec(ctx)
}

func (s *RoomStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// Refresh extends the ownership keys of every local room. Call it at an
// interval shorter than the TTL.
func (s *RoomStore) Refresh(ctx context.Context) error {
	s.mu.RLock()
	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	pipe := s.client.Pipeline()
	for _, id := range ids {
		pipe.Expire(ctx, ownerKey(id), s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RoomStore) ReserveCode(code, contestID string) (bool, error) {
	ctx := context.Background()
	ok, err := s.client.SetNX(ctx, codeKey(code), contestID, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("reserve code: %w", err)
	}
	if ok {
		return true, nil
	}
	owner, err := s.client.Get(ctx, codeKey(code)).Result()
	if err != nil {
		if isNil(err) {
			return false, nil
		}
		return false, fmt.Errorf("reserve code: %w", err)
	}
	return owner == contestID, nil
}

func (s *RoomStore) ResolveCode(code string) (string, bool) {
	id, err := s.client.Get(context.Background(), codeKey(code)).Result()
	if err != nil {
		return "", false
	}
	return id, true
}

func (s *RoomStore) ReleaseCode(code string) {
	_ = s.client.Del(context.Background(), codeKey(code)).Err()
}

func ownerKey(contestID string) string {
	return "contest:room:" + contestID
}

func codeKey(code string) string {
	return "contest:code:" + code
}
