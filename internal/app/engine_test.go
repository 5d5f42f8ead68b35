package app_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"contest-engine/internal/app"
	"contest-engine/internal/clock"
	"contest-engine/internal/domain"
	"contest-engine/internal/infra/memory"
	"github.com/shopspring/decimal"
)

var testStart = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

type harness struct {
	engine  *app.Engine
	clock   *clock.Fake
	storage *memory.Storage
}

func testSettings() app.Settings {
	return app.Settings{
		LobbyCountdown: 12 * time.Second,
		StartCountdown: 3 * time.Second,
		RevealDuration: 5 * time.Second,
		EvictionGrace:  time.Minute,
	}
}

func newHarness(t *testing.T, questions []domain.Question) *harness {
	t.Helper()
	clk := clock.NewFake(testStart)
	storage := memory.NewStorage()
	return &harness{
		engine:  newEngine(clk, storage, questions),
		clock:   clk,
		storage: storage,
	}
}

func newEngine(clk clock.Clock, storage *memory.Storage, questions []domain.Question) *app.Engine {
	source := memory.NewQuestionSource(memory.NewStaticQuestionLoader(map[string][]domain.Question{
		"general": questions,
	}), time.Minute)
	return app.NewEngine(app.Options{
		Rooms:       memory.NewRoomStore(),
		Questions:   source,
		Storage:     storage,
		Checkpoints: storage,
		Clock:       clk,
		Settings:    testSettings(),
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func sampleQuestions(n int) []domain.Question {
	questions := make([]domain.Question, n)
	for i := range questions {
		questions[i] = domain.Question{
			ID:                 "q" + string(rune('1'+i)),
			Text:               "Pick the right option",
			Options:            []string{"wrong", "right", "also wrong"},
			CorrectOptionIndex: 1,
		}
	}
	return questions
}

func contestSpec(fee int64, maxParticipants, questionCount int) domain.ContestSpec {
	return domain.ContestSpec{
		Name:            "Evening trivia",
		CreatorID:       "creator",
		EntryFee:        decimal.NewFromInt(fee),
		MaxParticipants: maxParticipants,
		QuestionCount:   questionCount,
		TimePerQuestion: 5 * time.Second,
		PrizeSplit:      []int{50, 30, 20},
		QuestionSetID:   "general",
	}
}

func (h *harness) create(t *testing.T, spec domain.ContestSpec) domain.Contest {
	t.Helper()
	contest, err := h.engine.CreateContest(context.Background(), spec)
	if err != nil {
		t.Fatalf("create contest: %v", err)
	}
	return contest
}

func (h *harness) join(t *testing.T, contestID string, users ...string) {
	t.Helper()
	for _, u := range users {
		if _, err := h.engine.JoinContest(context.Background(), contestID, u); err != nil {
			t.Fatalf("join %s: %v", u, err)
		}
	}
}

func (h *harness) answer(contestID, userID string, question, option int) error {
	_, err := h.engine.SubmitAnswer(context.Background(), contestID, userID, question, option, h.clock.Now())
	return err
}

func (h *harness) snapshot(t *testing.T, contestID string) domain.RoomSnapshot {
	t.Helper()
	snap, err := h.engine.GetSnapshot(context.Background(), contestID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return snap
}

func scoreOf(snap domain.RoomSnapshot, userID string) int {
	for _, p := range snap.Participants {
		if p.UserID == userID {
			return p.TotalScore
		}
	}
	return -1
}

func TestHeadToHeadContest(t *testing.T) {
	h := newHarness(t, sampleQuestions(1))
	contest := h.create(t, contestSpec(50, 2, 1))
	h.join(t, contest.ID, "A", "B")

	if snap := h.snapshot(t, contest.ID); snap.Phase != domain.PhaseScheduled {
		t.Fatalf("expected full room to be scheduled, got %s", snap.Phase)
	}

	h.clock.Advance(3 * time.Second)
	snap := h.snapshot(t, contest.ID)
	if snap.Phase != domain.PhaseQuestionActive || snap.QuestionIndex != 0 {
		t.Fatalf("expected question 0 active, got %s/%d", snap.Phase, snap.QuestionIndex)
	}
	if !snap.Deadline.Equal(h.clock.Now().Add(5 * time.Second)) {
		t.Fatalf("unexpected deadline %v", snap.Deadline)
	}

	h.clock.Advance(time.Second)
	if err := h.answer(contest.ID, "A", 0, 1); err != nil {
		t.Fatalf("A answer: %v", err)
	}
	if err := h.answer(contest.ID, "B", 0, 0); err != nil {
		t.Fatalf("B answer: %v", err)
	}

	snap = h.snapshot(t, contest.ID)
	if snap.Phase != domain.PhaseReveal {
		t.Fatalf("expected early lock into reveal, got %s", snap.Phase)
	}
	if scoreOf(snap, "A") != 140 || scoreOf(snap, "B") != 0 {
		t.Fatalf("expected A=140 B=0, got %+v", snap.Participants)
	}

	h.clock.Advance(5 * time.Second)
	snap = h.snapshot(t, contest.ID)
	if snap.Phase != domain.PhasePrizesDistributed || snap.Status != domain.StatusCompleted {
		t.Fatalf("expected prizes distributed, got %s/%s", snap.Phase, snap.Status)
	}

	result, ok := h.storage.Result(contest.ID)
	if !ok {
		t.Fatalf("expected contest result persisted")
	}
	if !result.Prizes.NetPool.Equal(decimal.NewFromInt(90)) {
		t.Fatalf("expected net pool 90, got %s", result.Prizes.NetPool)
	}
	payouts := result.Prizes.Payouts
	if payouts[0].UserID != "A" || !payouts[0].Amount.Equal(decimal.NewFromInt(90)) {
		t.Fatalf("expected A to take 90, got %+v", payouts[0])
	}
	if payouts[1].UserID != "B" || !payouts[1].Amount.IsZero() {
		t.Fatalf("expected B to get nothing, got %+v", payouts[1])
	}
	if len(h.storage.Answers(contest.ID)) != 2 {
		t.Fatalf("expected 2 persisted answers, got %d", len(h.storage.Answers(contest.ID)))
	}
}

func TestThreeWaySplit(t *testing.T) {
	h := newHarness(t, sampleQuestions(1))
	contest := h.create(t, contestSpec(10, 3, 1))
	h.join(t, contest.ID, "first", "second", "third")
	h.clock.Advance(3 * time.Second)

	h.clock.Advance(500 * time.Millisecond)
	if err := h.answer(contest.ID, "first", 0, 1); err != nil {
		t.Fatalf("answer: %v", err)
	}
	h.clock.Advance(2 * time.Second)
	if err := h.answer(contest.ID, "second", 0, 1); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if err := h.answer(contest.ID, "third", 0, 2); err != nil {
		t.Fatalf("answer: %v", err)
	}
	h.clock.Advance(5 * time.Second)

	result, ok := h.storage.Result(contest.ID)
	if !ok {
		t.Fatalf("expected contest result")
	}
	want := map[string]int64{"first": 14, "second": 8, "third": 5}
	sum := decimal.Zero
	for _, p := range result.Prizes.Payouts {
		if !p.Amount.Equal(decimal.NewFromInt(want[p.UserID])) {
			t.Fatalf("expected %s to get %d, got %s", p.UserID, want[p.UserID], p.Amount)
		}
		sum = sum.Add(p.Amount)
	}
	if !sum.Equal(decimal.NewFromInt(27)) {
		t.Fatalf("expected payouts to sum to 27, got %s", sum)
	}
	if result.Ranking[0].UserID != "first" || result.Ranking[2].UserID != "third" {
		t.Fatalf("unexpected ranking %+v", result.Ranking)
	}
}

func TestLobbyCancelsWithInsufficientParticipants(t *testing.T) {
	h := newHarness(t, sampleQuestions(1))
	contest := h.create(t, contestSpec(25, 5, 1))
	events, cancel, err := h.engine.Subscribe(context.Background(), contest.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	h.join(t, contest.ID, "solo")

	h.clock.Advance(12 * time.Second)

	snap := h.snapshot(t, contest.ID)
	if snap.Status != domain.StatusCancelled {
		t.Fatalf("expected cancelled contest, got %s", snap.Status)
	}

	var cancelled *domain.CancelledPayload
	for ev := range events {
		if ev.Type == domain.EventContestCancelled {
			payload := ev.Payload.(domain.CancelledPayload)
			cancelled = &payload
		}
	}
	if cancelled == nil || cancelled.Reason != domain.ReasonInsufficientParticipants {
		t.Fatalf("expected insufficient_participants cancellation, got %+v", cancelled)
	}

	refunds := h.storage.Refunds(contest.ID)
	if len(refunds) != 1 || len(refunds[0].Refunds) != 1 {
		t.Fatalf("expected one refund order for one participant, got %+v", refunds)
	}
	if r := refunds[0].Refunds[0]; r.UserID != "solo" || !r.Amount.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("unexpected refund %+v", r)
	}
	if _, err := h.engine.JoinContest(context.Background(), contest.ID, "late"); !errors.Is(err, domain.ErrContestNotJoinable) {
		t.Fatalf("expected not joinable after cancel, got %v", err)
	}
}

func TestLobbyCountdownSchedulesWithMinimumReached(t *testing.T) {
	h := newHarness(t, sampleQuestions(1))
	contest := h.create(t, contestSpec(10, 10, 1))
	h.join(t, contest.ID, "a", "b")

	h.clock.Advance(11 * time.Second)
	if snap := h.snapshot(t, contest.ID); snap.Phase != domain.PhaseWaiting {
		t.Fatalf("expected still waiting, got %s", snap.Phase)
	}
	h.clock.Advance(time.Second)
	if snap := h.snapshot(t, contest.ID); snap.Phase != domain.PhaseScheduled {
		t.Fatalf("expected scheduled after countdown, got %s", snap.Phase)
	}
	h.join(t, contest.ID, "c")
	h.clock.Advance(3 * time.Second)
	if snap := h.snapshot(t, contest.ID); snap.Phase != domain.PhaseQuestionActive || len(snap.Participants) != 3 {
		t.Fatalf("expected 3 players in question 0, got %+v", snap)
	}
}

func TestDisconnectMidQuestionScoresNoAnswer(t *testing.T) {
	h := newHarness(t, sampleQuestions(2))
	contest := h.create(t, contestSpec(20, 2, 2))
	h.join(t, contest.ID, "A", "B")
	h.clock.Advance(3 * time.Second)

	if err := h.answer(contest.ID, "A", 0, 1); err != nil {
		t.Fatalf("answer q0: %v", err)
	}
	if err := h.answer(contest.ID, "B", 0, 1); err != nil {
		t.Fatalf("answer q0: %v", err)
	}
	h.clock.Advance(5 * time.Second)
	if snap := h.snapshot(t, contest.ID); snap.Phase != domain.PhaseQuestionActive || snap.QuestionIndex != 1 {
		t.Fatalf("expected question 1 active, got %s/%d", snap.Phase, snap.QuestionIndex)
	}
	scoreAfterQ0 := scoreOf(h.snapshot(t, contest.ID), "A")

	if err := h.engine.MarkDisconnected(context.Background(), contest.ID, "A"); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if err := h.engine.MarkReconnected(context.Background(), contest.ID, "A"); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if err := h.answer(contest.ID, "A", 1, 1); !errors.Is(err, domain.ErrAnswerWindowClosed) {
		t.Fatalf("expected forfeited question to stay closed, got %v", err)
	}
	if err := h.answer(contest.ID, "B", 1, 1); err != nil {
		t.Fatalf("answer q1: %v", err)
	}
	h.clock.Advance(5 * time.Second)

	result, ok := h.storage.Result(contest.ID)
	if !ok {
		t.Fatalf("expected contest result")
	}
	var rankedA *domain.Standing
	for i := range result.Ranking {
		if result.Ranking[i].UserID == "A" {
			rankedA = &result.Ranking[i]
		}
	}
	if rankedA == nil || rankedA.Rank == 0 {
		t.Fatalf("expected disconnected participant to be ranked, got %+v", result.Ranking)
	}
	if rankedA.TotalScore != scoreAfterQ0 {
		t.Fatalf("expected no points for question 1, got %d (had %d)", rankedA.TotalScore, scoreAfterQ0)
	}
	for _, rec := range h.storage.Answers(contest.ID) {
		if rec.ParticipantID == "A" && rec.QuestionIndex == 1 {
			if rec.SelectedIndex != nil || rec.PointsAwarded != 0 {
				t.Fatalf("expected unanswered record, got %+v", rec)
			}
			return
		}
	}
	t.Fatalf("expected a persisted record for A on question 1")
}

func TestLateAnswerIsRejected(t *testing.T) {
	h := newHarness(t, sampleQuestions(1))
	contest := h.create(t, contestSpec(10, 2, 1))
	h.join(t, contest.ID, "A", "B")
	h.clock.Advance(3 * time.Second)

	if err := h.answer(contest.ID, "A", 0, 1); err != nil {
		t.Fatalf("answer: %v", err)
	}
	h.clock.Advance(5 * time.Second)

	if err := h.answer(contest.ID, "B", 0, 1); !errors.Is(err, domain.ErrAnswerWindowClosed) {
		t.Fatalf("expected answer window closed, got %v", err)
	}
	if got := scoreOf(h.snapshot(t, contest.ID), "B"); got != 0 {
		t.Fatalf("expected late answer to score 0, got %d", got)
	}
}

func TestAnswerStampedAfterDeadlineIsRejected(t *testing.T) {
	h := newHarness(t, sampleQuestions(1))
	contest := h.create(t, contestSpec(10, 2, 1))
	h.join(t, contest.ID, "A", "B")
	h.clock.Advance(3 * time.Second)

	deadline := h.snapshot(t, contest.ID).Deadline
	_, err := h.engine.SubmitAnswer(context.Background(), contest.ID, "A", 0, 1, deadline.Add(time.Millisecond))
	if !errors.Is(err, domain.ErrAnswerWindowClosed) {
		t.Fatalf("expected answer window closed, got %v", err)
	}
	if err := h.answer(contest.ID, "A", 0, 1); err != nil {
		t.Fatalf("expected on-time answer to be accepted, got %v", err)
	}
}

func TestExactlyOneAnswerPerQuestion(t *testing.T) {
	h := newHarness(t, sampleQuestions(2))
	contest := h.create(t, contestSpec(10, 3, 2))
	h.join(t, contest.ID, "A", "B", "C")
	h.clock.Advance(3 * time.Second)

	if err := h.answer(contest.ID, "A", 0, 1); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if err := h.answer(contest.ID, "A", 0, 2); !errors.Is(err, domain.ErrDuplicateAnswer) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	h.clock.Advance(5 * time.Second)
	if err := h.answer(contest.ID, "A", 0, 1); !errors.Is(err, domain.ErrDuplicateAnswer) {
		t.Fatalf("expected duplicate after lock, got %v", err)
	}
}

func TestSubmitAnswerErrors(t *testing.T) {
	h := newHarness(t, sampleQuestions(2))
	contest := h.create(t, contestSpec(10, 3, 2))
	h.join(t, contest.ID, "A", "B")

	if err := h.answer(contest.ID, "A", 0, 1); !errors.Is(err, domain.ErrNotInProgress) {
		t.Fatalf("expected not in progress before start, got %v", err)
	}
	if err := h.engine.StartContest(context.Background(), contest.ID, "creator"); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.clock.Advance(3 * time.Second)

	cases := []struct {
		name     string
		user     string
		question int
		option   int
		want     error
	}{
		{"future question", "A", 1, 1, domain.ErrNotInProgress},
		{"option out of range", "A", 0, 3, domain.ErrInvalidOption},
		{"negative option", "A", 0, -1, domain.ErrInvalidOption},
		{"question out of range", "A", 7, 0, domain.ErrInvalidQuestionIndex},
		{"stranger", "Z", 0, 1, domain.ErrNotParticipant},
	}
	for _, tc := range cases {
		if err := h.answer(contest.ID, tc.user, tc.question, tc.option); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
	if err := h.answer("missing", "A", 0, 1); !errors.Is(err, domain.ErrContestNotFound) {
		t.Fatalf("expected contest not found, got %v", err)
	}
}

func TestJoinErrors(t *testing.T) {
	h := newHarness(t, sampleQuestions(1))
	contest := h.create(t, contestSpec(10, 2, 1))
	h.join(t, contest.ID, "A")

	if _, err := h.engine.JoinContest(context.Background(), contest.ID, "A"); !errors.Is(err, domain.ErrAlreadyJoined) {
		t.Fatalf("expected already joined, got %v", err)
	}
	h.join(t, contest.ID, "B")
	if _, err := h.engine.JoinContest(context.Background(), contest.ID, "C"); !errors.Is(err, domain.ErrContestFull) {
		t.Fatalf("expected contest full, got %v", err)
	}
	if _, err := h.engine.JoinContest(context.Background(), contest.ID, ""); !errors.Is(err, domain.ErrInvalidUserID) {
		t.Fatalf("expected invalid user, got %v", err)
	}

	other := h.create(t, contestSpec(10, 5, 1))
	h.join(t, other.ID, "A", "B")
	if err := h.engine.StartContest(context.Background(), other.ID, "creator"); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.clock.Advance(3 * time.Second)
	if _, err := h.engine.JoinContest(context.Background(), other.ID, "C"); !errors.Is(err, domain.ErrContestNotJoinable) {
		t.Fatalf("expected not joinable once in progress, got %v", err)
	}
}

func TestCreateContestValidation(t *testing.T) {
	h := newHarness(t, sampleQuestions(1))
	mutations := map[string]func(*domain.ContestSpec){
		"low fee":         func(s *domain.ContestSpec) { s.EntryFee = decimal.RequireFromString("4.99") },
		"one seat":        func(s *domain.ContestSpec) { s.MaxParticipants = 1 },
		"too many seats":  func(s *domain.ContestSpec) { s.MaxParticipants = 101 },
		"split not 100":   func(s *domain.ContestSpec) { s.PrizeSplit = []int{50, 30} },
		"no questions":    func(s *domain.ContestSpec) { s.QuestionCount = 0 },
		"no time":         func(s *domain.ContestSpec) { s.TimePerQuestion = 0 },
		"min above max":   func(s *domain.ContestSpec) { s.MinParticipants = 3; s.MaxParticipants = 2 },
		"missing creator": func(s *domain.ContestSpec) { s.CreatorID = "" },
	}
	for name, mutate := range mutations {
		spec := contestSpec(10, 5, 1)
		mutate(&spec)
		if _, err := h.engine.CreateContest(context.Background(), spec); !errors.Is(err, domain.ErrInvalidContestSpec) {
			t.Fatalf("%s: expected invalid spec, got %v", name, err)
		}
	}
	if h.engine.ActiveRooms() != 0 {
		t.Fatalf("rejected specs must not open rooms")
	}
}

func TestCreatorCancelRefundsEveryone(t *testing.T) {
	h := newHarness(t, sampleQuestions(1))
	contest := h.create(t, contestSpec(15, 5, 1))
	h.join(t, contest.ID, "A", "B")

	if err := h.engine.CancelContest(context.Background(), contest.ID, "A"); !errors.Is(err, domain.ErrNotCreator) {
		t.Fatalf("expected not creator, got %v", err)
	}
	if err := h.engine.CancelContest(context.Background(), contest.ID, "creator"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	refunds := h.storage.Refunds(contest.ID)
	if len(refunds) != 1 || refunds[0].Reason != domain.ReasonCancelledByCreator || len(refunds[0].Refunds) != 2 {
		t.Fatalf("unexpected refunds %+v", refunds)
	}
	// the lobby timer must be gone
	h.clock.Advance(time.Hour)
	if len(h.storage.Refunds(contest.ID)) != 1 {
		t.Fatalf("expected a single refund order")
	}
}

func TestPrivateContestJoinByCode(t *testing.T) {
	h := newHarness(t, sampleQuestions(1))
	spec := contestSpec(10, 2, 1)
	spec.Private = true
	contest := h.create(t, spec)
	if len(contest.PrivateCode) != 6 {
		t.Fatalf("expected 6 char code, got %q", contest.PrivateCode)
	}

	if _, err := h.engine.JoinByCode(context.Background(), "  ", "A"); !errors.Is(err, domain.ErrInvalidCode) {
		t.Fatalf("expected invalid code for a blank code, got %v", err)
	}
	snap, err := h.engine.JoinByCode(context.Background(), contest.PrivateCode, "A")
	if err != nil {
		t.Fatalf("join by code: %v", err)
	}
	if snap.ContestID != contest.ID {
		t.Fatalf("joined wrong contest %s", snap.ContestID)
	}
	h.join(t, contest.ID, "B")
	h.clock.Advance(3 * time.Second)

	if _, err := h.engine.JoinByCode(context.Background(), contest.PrivateCode, "C"); !errors.Is(err, domain.ErrContestNotFound) {
		t.Fatalf("expected code released once the contest started, got %v", err)
	}
}

func TestFinishedRoomsAreEvictedAfterGrace(t *testing.T) {
	h := newHarness(t, sampleQuestions(1))
	contest := h.create(t, contestSpec(10, 2, 1))
	h.join(t, contest.ID, "A", "B")
	h.clock.Advance(3 * time.Second)
	h.clock.Advance(5 * time.Second)
	h.clock.Advance(5 * time.Second)

	if snap := h.snapshot(t, contest.ID); snap.Phase != domain.PhasePrizesDistributed {
		t.Fatalf("expected finished contest still readable, got %s", snap.Phase)
	}
	h.clock.Advance(time.Minute)
	if _, err := h.engine.GetSnapshot(context.Background(), contest.ID); !errors.Is(err, domain.ErrContestNotFound) {
		t.Fatalf("expected evicted room, got %v", err)
	}
	if _, ok := h.storage.RoomState(contest.ID); ok {
		t.Fatalf("expected checkpoint deleted on eviction")
	}
}

func TestQuestionSourceFailureCancelsWithInternalError(t *testing.T) {
	h := newHarness(t, sampleQuestions(1))
	contest := h.create(t, contestSpec(10, 2, 3))
	h.join(t, contest.ID, "A", "B")
	h.clock.Advance(3 * time.Second)

	snap := h.snapshot(t, contest.ID)
	if snap.Status != domain.StatusCancelled {
		t.Fatalf("expected cancelled contest, got %s", snap.Status)
	}
	refunds := h.storage.Refunds(contest.ID)
	if len(refunds) != 1 || refunds[0].Reason != domain.ReasonInternalError {
		t.Fatalf("expected internal_error refund order, got %+v", refunds)
	}
}

func TestEventStreamOrder(t *testing.T) {
	h := newHarness(t, sampleQuestions(1))
	contest := h.create(t, contestSpec(10, 2, 1))
	events, cancel, err := h.engine.Subscribe(context.Background(), contest.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	h.join(t, contest.ID, "A", "B")
	h.clock.Advance(3 * time.Second)
	_ = h.answer(contest.ID, "A", 0, 1)
	h.clock.Advance(5 * time.Second)
	h.clock.Advance(5 * time.Second)

	want := []domain.EventType{
		domain.EventParticipantJoined,
		domain.EventParticipantJoined,
		domain.EventRoomScheduled,
		domain.EventContestStarted,
		domain.EventQuestionRevealed,
		domain.EventQuestionLocked,
		domain.EventQuestionScored,
		domain.EventContestCompleted,
		domain.EventPrizesDistributed,
	}
	var got []domain.EventType
	var lastSeq int64
	for ev := range events {
		if ev.Seq <= lastSeq {
			t.Fatalf("expected increasing seq, got %d after %d", ev.Seq, lastSeq)
		}
		lastSeq = ev.Seq
		got = append(got, ev.Type)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestConcurrentRoomsStayIndependent(t *testing.T) {
	h := newHarness(t, sampleQuestions(1))
	const rooms, players = 20, 10

	ids := make([]string, rooms)
	for i := range ids {
		ids[i] = h.create(t, contestSpec(10, players, 1)).ID
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		for p := 0; p < players; p++ {
			wg.Add(1)
			go func(id string, p int) {
				defer wg.Done()
				if _, err := h.engine.JoinContest(context.Background(), id, userName(p)); err != nil {
					t.Errorf("join: %v", err)
				}
			}(id, p)
		}
	}
	wg.Wait()
	h.clock.Advance(3 * time.Second)

	var mu sync.Mutex
	accepted := make(map[string]int)
	for _, id := range ids {
		for p := 0; p < players; p++ {
			for attempt := 0; attempt < 2; attempt++ {
				wg.Add(1)
				go func(id string, p int) {
					defer wg.Done()
					err := h.answer(id, userName(p), 0, 1)
					switch {
					case err == nil:
						mu.Lock()
						accepted[id]++
						mu.Unlock()
					case errors.Is(err, domain.ErrDuplicateAnswer):
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}(id, p)
			}
		}
	}
	wg.Wait()

	for _, id := range ids {
		if accepted[id] != players {
			t.Fatalf("room %s: expected %d accepted answers, got %d", id, players, accepted[id])
		}
		if snap := h.snapshot(t, id); snap.Phase != domain.PhaseReveal {
			t.Fatalf("room %s: expected early lock, got %s", id, snap.Phase)
		}
		if n := len(h.storage.Answers(id)); n != players {
			t.Fatalf("room %s: expected %d persisted answers, got %d", id, players, n)
		}
	}
}

func userName(i int) string {
	return "player-" + string(rune('a'+i))
}
