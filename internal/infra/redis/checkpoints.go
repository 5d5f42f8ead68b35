package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"contest-engine/internal/domain"
	"github.com/redis/go-redis/v9"
)

const stateKeyPrefix = "contest:state:"

// Checkpoints stores room checkpoints as JSON strings so a restarted
// instance can resume its contests.
// States are stored as: SET contest:state:{contestID} <json>
type Checkpoints struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCheckpoints keeps checkpoints for ttl after their last write; zero keeps
// them until deleted.
func NewCheckpoints(client *redis.Client, ttl time.Duration) *Checkpoints {
	return &Checkpoints{client: client, ttl: ttl}
}

func (c *Checkpoints) SaveRoomState(ctx context.Context, state domain.RoomState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode room state %s: %w", state.Contest.ID, err)
	}
	if err := c.client.Set(ctx, stateKey(state.Contest.ID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("save room state %s: %w", state.Contest.ID, err)
	}
	return nil
}

func (c *Checkpoints) DeleteRoomState(ctx context.Context, contestID string) error {
	return c.client.Del(ctx, stateKey(contestID)).Err()
}

// LoadRoomStates scans every checkpoint. Entries that fail to decode are
// skipped so one bad key cannot block recovery of the rest.
func (c *Checkpoints) LoadRoomStates(ctx context.Context) ([]domain.RoomState, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, stateKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan room states: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load room states: %w", err)
	}
	states := make([]domain.RoomState, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var state domain.RoomState
		if err := json.Unmarshal([]byte(raw), &state); err != nil {
			continue
		}
		states = append(states, state)
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].Contest.CreatedAt.Before(states[j].Contest.CreatedAt)
	})
	return states, nil
}

func stateKey(contestID string) string {
	return stateKeyPrefix + contestID
}
