package app

import (
	"context"
	"fmt"
	"time"

	"contest-engine/internal/domain"
)

// QuestionSource supplies the ordered questions of a contest. It is called
// once per contest, when the first question is about to be revealed.
type QuestionSource interface {
	FetchQuestions(ctx context.Context, contest domain.Contest) ([]domain.Question, error)
}

// Storage receives write-once records from rooms. Calls go through a
// Dispatcher, so implementations may block and fail; the room never waits.
type Storage interface {
	PersistAnswer(ctx context.Context, record domain.AnswerRecord) error
	PersistContestResult(ctx context.Context, result domain.ContestResult) error
	PersistRefund(ctx context.Context, order domain.RefundOrder) error
}

// EventSink forwards room events to other processes (pub/sub, brokers).
type EventSink interface {
	Publish(ctx context.Context, event domain.Event) error
}

// Checkpointer stores the re-derivable state of rooms for crash recovery.
type Checkpointer interface {
	SaveRoomState(ctx context.Context, state domain.RoomState) error
	DeleteRoomState(ctx context.Context, contestID string) error
	LoadRoomStates(ctx context.Context) ([]domain.RoomState, error)
}

// RoomRepository abstracts where live rooms are registered (in-memory, Redis, etc).
type RoomRepository interface {
	// Add registers a room; it fails with domain.ErrRoomExists if the contest already has one.
	Add(room *Room) error
	Get(contestID string) (*Room, bool)
	Remove(contestID string)
	Len() int
	// ReserveCode claims a private code for a contest; false means it is taken.
	ReserveCode(code, contestID string) (bool, error)
	ResolveCode(code string) (string, bool)
	ReleaseCode(code string)
}

// Dispatcher runs side effects off the room's critical path. Operations
// submitted to one lane from one goroutine must run in submission order;
// a stuck lane must not hold up the others.
type Dispatcher interface {
	Dispatch(lane, op string, fn func(ctx context.Context) error)
}

// Dispatch lanes used by the engine. Each event sink gets its own lane.
const (
	LaneStorage     = "storage"
	LaneCheckpoints = "checkpoints"
)

func sinkLane(i int) string {
	return fmt.Sprintf("sink-%d", i)
}

// Settings holds the engine's timing policy.
type Settings struct {
	// LobbyCountdown is how long a room waits for players before it either
	// schedules the contest or cancels it.
	LobbyCountdown time.Duration
	// StartCountdown separates scheduling from the first question.
	StartCountdown time.Duration
	// RevealDuration is the pause after each question is scored.
	RevealDuration time.Duration
	// EvictionGrace keeps finished rooms readable before they are dropped.
	EvictionGrace    time.Duration
	FetchTimeout     time.Duration
	SubscriberBuffer int
}

// DefaultSettings mirrors the lobby and reveal timings of the mobile client.
func DefaultSettings() Settings {
	return Settings{
		LobbyCountdown:   12 * time.Second,
		StartCountdown:   3 * time.Second,
		RevealDuration:   5 * time.Second,
		EvictionGrace:    time.Minute,
		FetchTimeout:     5 * time.Second,
		SubscriberBuffer: 16,
	}
}

func (s Settings) withDefaults() Settings {
	def := DefaultSettings()
	if s.LobbyCountdown <= 0 {
		s.LobbyCountdown = def.LobbyCountdown
	}
	if s.StartCountdown < 0 {
		s.StartCountdown = 0
	}
	if s.RevealDuration < 0 {
		s.RevealDuration = 0
	}
	if s.EvictionGrace <= 0 {
		s.EvictionGrace = def.EvictionGrace
	}
	if s.FetchTimeout <= 0 {
		s.FetchTimeout = def.FetchTimeout
	}
	if s.SubscriberBuffer <= 0 {
		s.SubscriberBuffer = def.SubscriberBuffer
	}
	return s
}
