package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"contest-engine/internal/clock"
	"contest-engine/internal/domain"
	"github.com/google/uuid"
)

const (
	privateCodeLength   = 6
	privateCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	privateCodeAttempts = 10
)

// Options wires an Engine to its collaborators. Rooms, Questions and Storage
// are required; the rest fall back to in-process defaults.
type Options struct {
	Rooms       RoomRepository
	Questions   QuestionSource
	Storage     Storage
	Checkpoints Checkpointer
	Sinks       []EventSink
	Dispatcher  Dispatcher
	Clock       clock.Clock
	Settings    Settings
	Logger      *slog.Logger
}

// Engine is the entry point for every contest command. It holds no global
// state; each contest is served by its own Room.
type Engine struct {
	registry    *Registry
	rooms       RoomRepository
	source      QuestionSource
	storage     Storage
	checkpoints Checkpointer
	sinks       []EventSink
	dispatcher  Dispatcher
	clock       clock.Clock
	settings    Settings
	logger      *slog.Logger
}

func NewEngine(opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	settings := opts.Settings.withDefaults()

	e := &Engine{
		rooms:       opts.Rooms,
		source:      opts.Questions,
		storage:     opts.Storage,
		checkpoints: opts.Checkpoints,
		sinks:       opts.Sinks,
		dispatcher:  opts.Dispatcher,
		clock:       opts.Clock,
		settings:    settings,
		logger:      opts.Logger,
	}
	if e.dispatcher == nil {
		e.dispatcher = inlineDispatcher{logger: opts.Logger}
	}
	e.registry = NewRegistry(opts.Rooms, opts.Clock, settings.EvictionGrace, opts.Logger)
	e.registry.onEvict = e.evicted
	return e
}

// Clock exposes the engine clock so gateways stamp answers consistently.
func (e *Engine) Clock() clock.Clock {
	return e.clock
}

// CreateContest validates spec and opens a room in the waiting phase.
func (e *Engine) CreateContest(_ context.Context, spec domain.ContestSpec) (domain.Contest, error) {
	if err := ValidateSpec(spec); err != nil {
		return domain.Contest{}, err
	}
	if spec.MinParticipants == 0 {
		spec.MinParticipants = minParticipants
	}

	contest := domain.Contest{
		ID:              uuid.NewString(),
		Name:            strings.TrimSpace(spec.Name),
		CreatorID:       spec.CreatorID,
		EntryFee:        spec.EntryFee,
		MaxParticipants: spec.MaxParticipants,
		MinParticipants: spec.MinParticipants,
		QuestionCount:   spec.QuestionCount,
		TimePerQuestion: spec.TimePerQuestion,
		PrizeSplit:      append([]int(nil), spec.PrizeSplit...),
		QuestionSetID:   spec.QuestionSetID,
		Status:          domain.StatusWaiting,
		CreatedAt:       e.clock.Now(),
	}

	if spec.Private {
		code, err := e.reserveCode(contest.ID)
		if err != nil {
			return domain.Contest{}, err
		}
		contest.PrivateCode = code
	}

	room := newRoom(contest, e.roomDeps())
	if err := e.registry.Register(room); err != nil {
		e.rooms.ReleaseCode(contest.PrivateCode)
		return domain.Contest{}, fmt.Errorf("register room %s: %w", contest.ID, err)
	}
	room.open()

	e.logger.Info("contest created", "contest_id", contest.ID, "max_participants", contest.MaxParticipants, "private", spec.Private)
	return room.Contest(), nil
}

// JoinContest adds userID to the contest.
func (e *Engine) JoinContest(_ context.Context, contestID, userID string) (domain.RoomSnapshot, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.RoomSnapshot{}, domain.ErrInvalidUserID
	}
	room, err := e.registry.Lookup(contestID)
	if err != nil {
		return domain.RoomSnapshot{}, err
	}
	return room.Join(userID)
}

// JoinByCode joins a private contest by its code.
func (e *Engine) JoinByCode(ctx context.Context, code, userID string) (domain.RoomSnapshot, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return domain.RoomSnapshot{}, domain.ErrInvalidCode
	}
	room, err := e.registry.LookupCode(code)
	if err != nil {
		return domain.RoomSnapshot{}, err
	}
	return e.JoinContest(ctx, room.ID(), userID)
}

// StartContest schedules the contest before the lobby countdown runs out.
func (e *Engine) StartContest(_ context.Context, contestID, userID string) error {
	room, err := e.registry.Lookup(contestID)
	if err != nil {
		return err
	}
	return room.Start(userID)
}

// CancelContest cancels a contest that has not started and refunds everyone.
func (e *Engine) CancelContest(_ context.Context, contestID, userID string) error {
	room, err := e.registry.Lookup(contestID)
	if err != nil {
		return err
	}
	return room.Cancel(userID)
}

// SubmitAnswer records an answer for the open question of a contest.
func (e *Engine) SubmitAnswer(_ context.Context, contestID, userID string, questionIndex, selectedIndex int, submittedAt time.Time) (domain.AnswerRecord, error) {
	if selectedIndex < 0 {
		return domain.AnswerRecord{}, domain.ErrInvalidOption
	}
	if questionIndex < 0 {
		return domain.AnswerRecord{}, domain.ErrInvalidQuestionIndex
	}
	room, err := e.registry.Lookup(contestID)
	if err != nil {
		return domain.AnswerRecord{}, err
	}
	return room.SubmitAnswer(userID, questionIndex, selectedIndex, submittedAt)
}

// MarkDisconnected records that userID lost their connection.
func (e *Engine) MarkDisconnected(_ context.Context, contestID, userID string) error {
	room, err := e.registry.Lookup(contestID)
	if err != nil {
		return err
	}
	return room.MarkDisconnected(userID)
}

// MarkReconnected records that userID is connected again.
func (e *Engine) MarkReconnected(_ context.Context, contestID, userID string) error {
	room, err := e.registry.Lookup(contestID)
	if err != nil {
		return err
	}
	return room.MarkReconnected(userID)
}

// GetSnapshot returns the current read-only view of a contest.
func (e *Engine) GetSnapshot(_ context.Context, contestID string) (domain.RoomSnapshot, error) {
	room, err := e.registry.Lookup(contestID)
	if err != nil {
		return domain.RoomSnapshot{}, err
	}
	return room.Snapshot(), nil
}

// Subscribe returns a channel of events for a contest.
// The caller must invoke the returned cancel function to avoid leaks.
func (e *Engine) Subscribe(_ context.Context, contestID string) (<-chan domain.Event, func(), error) {
	room, err := e.registry.Lookup(contestID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := room.Subscribe()
	return ch, cancel, nil
}

// ActiveRooms reports how many rooms the registry holds.
func (e *Engine) ActiveRooms() int {
	return e.registry.Len()
}

// Recover rebuilds rooms from checkpoints left by a previous process and
// re-arms their timers.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	if e.checkpoints == nil {
		return 0, nil
	}
	states, err := e.checkpoints.LoadRoomStates(ctx)
	if err != nil {
		return 0, fmt.Errorf("load room states: %w", err)
	}

	restored := 0
	for _, state := range states {
		if state.Phase.Terminal() {
			e.evicted(state.Contest.ID)
			continue
		}
		room := restoreRoom(state, e.roomDeps())
		if err := e.registry.Register(room); err != nil {
			if errors.Is(err, domain.ErrRoomExists) {
				continue
			}
			return restored, fmt.Errorf("register restored room %s: %w", state.Contest.ID, err)
		}
		if code := state.Contest.PrivateCode; code != "" && state.Contest.Status.Joinable() {
			if _, err := e.rooms.ReserveCode(code, state.Contest.ID); err != nil {
				e.logger.Warn("reserve restored code", "contest_id", state.Contest.ID, "error", err)
			}
		}
		room.resume()
		restored++
	}
	e.logger.Info("rooms recovered", "count", restored)
	return restored, nil
}

// Close stops pending evictions. Rooms keep their timers.
func (e *Engine) Close() {
	e.registry.Close()
}

func (e *Engine) roomDeps() roomDeps {
	return roomDeps{
		clock:    e.clock,
		source:   e.source,
		hooks:    e,
		settings: e.settings,
		logger:   e.logger,
	}
}

func (e *Engine) reserveCode(contestID string) (string, error) {
	for i := 0; i < privateCodeAttempts; i++ {
		code, err := newPrivateCode()
		if err != nil {
			return "", fmt.Errorf("reserve private code: %w", err)
		}
		ok, err := e.rooms.ReserveCode(code, contestID)
		if err != nil {
			return "", fmt.Errorf("reserve private code: %w", err)
		}
		if ok {
			return code, nil
		}
	}
	return "", fmt.Errorf("reserve private code: no free code after %d attempts", privateCodeAttempts)
}

// newPrivateCode draws a join code from crypto/rand. The alphabet has 32
// symbols, so reducing a byte modulo its length is unbiased.
func newPrivateCode() (string, error) {
	buf := make([]byte, privateCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = privateCodeAlphabet[int(b)%len(privateCodeAlphabet)]
	}
	return string(buf), nil
}

func (e *Engine) evicted(contestID string) {
	if e.checkpoints == nil {
		return
	}
	e.dispatcher.Dispatch(LaneCheckpoints, "delete room state", func(ctx context.Context) error {
		return e.checkpoints.DeleteRoomState(ctx, contestID)
	})
}

func (e *Engine) persistAnswer(record domain.AnswerRecord) {
	e.dispatcher.Dispatch(LaneStorage, "persist answer", func(ctx context.Context) error {
		return e.storage.PersistAnswer(ctx, record)
	})
}

func (e *Engine) persistResult(result domain.ContestResult) {
	e.dispatcher.Dispatch(LaneStorage, "persist contest result", func(ctx context.Context) error {
		return e.storage.PersistContestResult(ctx, result)
	})
}

func (e *Engine) persistRefund(order domain.RefundOrder) {
	e.dispatcher.Dispatch(LaneStorage, "persist refund", func(ctx context.Context) error {
		return e.storage.PersistRefund(ctx, order)
	})
}

func (e *Engine) publish(event domain.Event) {
	for i, sink := range e.sinks {
		sink := sink
		e.dispatcher.Dispatch(sinkLane(i), "publish "+string(event.Type), func(ctx context.Context) error {
			return sink.Publish(ctx, event)
		})
	}
}

func (e *Engine) checkpoint(state domain.RoomState) {
	if e.checkpoints == nil {
		return
	}
	e.dispatcher.Dispatch(LaneCheckpoints, "save room state", func(ctx context.Context) error {
		return e.checkpoints.SaveRoomState(ctx, state)
	})
}

func (e *Engine) releaseCode(code string) {
	if code != "" {
		e.rooms.ReleaseCode(code)
	}
}

func (e *Engine) terminated(contestID string) {
	e.registry.ScheduleEviction(contestID)
}

// inlineDispatcher runs side effects synchronously; used when no outbox is wired.
type inlineDispatcher struct {
	logger *slog.Logger
}

func (d inlineDispatcher) Dispatch(lane, op string, fn func(ctx context.Context) error) {
	if err := fn(context.Background()); err != nil {
		d.logger.Error("dispatch failed", "lane", lane, "op", op, "error", err)
	}
}
