package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"contest-engine/internal/clock"
	"contest-engine/internal/domain"
	"contest-engine/internal/scoring"
)

// roomHooks receives a room's side effects. Every hook is called with the
// room lock held and must not block or call back into the room.
type roomHooks interface {
	persistAnswer(record domain.AnswerRecord)
	persistResult(result domain.ContestResult)
	persistRefund(order domain.RefundOrder)
	publish(event domain.Event)
	checkpoint(state domain.RoomState)
	releaseCode(code string)
	terminated(contestID string)
}

type roomDeps struct {
	clock    clock.Clock
	source   QuestionSource
	hooks    roomHooks
	settings Settings
	logger   *slog.Logger
}

// Room runs the state machine of one contest. All mutable state is guarded
// by mu; timers carry a generation number so a callback that lost a race
// with Stop is ignored.
type Room struct {
	deps roomDeps

	mu           sync.Mutex
	contest      domain.Contest
	participants map[string]*domain.Participant
	order        []*domain.Participant
	questions    []domain.Question
	phase        domain.Phase
	qIndex       int
	revealedAt   time.Time
	deadline     time.Time
	phaseEndsAt  time.Time
	scored       []bool
	fetching     bool

	prizesComputed bool
	prizes         *domain.PrizeTable
	reason         string

	timer    clock.Timer
	timerGen uint64
	seq      int64

	subscribers map[chan domain.Event]struct{}
	snapshot    atomic.Pointer[domain.RoomSnapshot]
}

func newRoom(contest domain.Contest, deps roomDeps) *Room {
	r := &Room{
		deps:         deps,
		contest:      contest,
		participants: make(map[string]*domain.Participant),
		phase:        domain.PhaseWaiting,
		scored:       make([]bool, contest.QuestionCount),
		subscribers:  make(map[chan domain.Event]struct{}),
	}
	r.contest.Status = domain.StatusWaiting
	r.publishSnapshotLocked()
	return r
}

// restoreRoom rebuilds a room from a checkpoint. Timers are armed by resume.
func restoreRoom(state domain.RoomState, deps roomDeps) *Room {
	r := &Room{
		deps:           deps,
		contest:        state.Contest,
		participants:   make(map[string]*domain.Participant, len(state.Participants)),
		questions:      state.Questions,
		phase:          state.Phase,
		qIndex:         state.QuestionIndex,
		revealedAt:     state.RevealedAt,
		deadline:       state.Deadline,
		phaseEndsAt:    state.PhaseEndsAt,
		scored:         make([]bool, state.Contest.QuestionCount),
		prizesComputed: state.PrizesComputed,
		prizes:         state.Prizes,
		reason:         state.Reason,
		seq:            state.Seq,
		subscribers:    make(map[chan domain.Event]struct{}),
	}
	copy(r.scored, state.Scored)
	for i := range state.Participants {
		p := state.Participants[i]
		answers := make([]*domain.AnswerRecord, state.Contest.QuestionCount)
		for j, rec := range p.Answers {
			if rec != nil && j < len(answers) {
				dup := *rec
				answers[j] = &dup
			}
		}
		p.Answers = answers
		r.participants[p.UserID] = &p
		r.order = append(r.order, &p)
	}
	r.publishSnapshotLocked()
	return r
}

// ID returns the contest ID served by the room.
func (r *Room) ID() string {
	return r.contest.ID
}

// Contest returns a copy of the room's contest.
func (r *Room) Contest() domain.Contest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.contestLocked()
}

// open arms the lobby countdown of a freshly registered room.
func (r *Room) open() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phaseEndsAt = r.now().Add(r.deps.settings.LobbyCountdown)
	r.armLocked(r.deps.settings.LobbyCountdown, r.lobbyExpiredLocked)
	r.checkpointLocked()
}

// resume re-arms timers for a room restored from a checkpoint. Elapsed
// deadlines fire immediately; scoring and payout guards make replays safe.
func (r *Room) resume() {
	defer r.recoverInternal()
	r.mu.Lock()
	defer r.mu.Unlock()

	remaining := func() time.Duration {
		if d := r.phaseEndsAt.Sub(r.now()); d > 0 {
			return d
		}
		return 0
	}

	switch r.phase {
	case domain.PhaseWaiting:
		r.armLocked(remaining(), r.lobbyExpiredLocked)
	case domain.PhaseScheduled:
		r.armStartLocked(remaining())
	case domain.PhaseQuestionActive:
		if !r.now().Before(r.deadline) {
			r.lockQuestionLocked(false)
			return
		}
		r.armLocked(r.deadline.Sub(r.now()), func() { r.lockQuestionLocked(false) })
	case domain.PhaseQuestionLocked:
		r.revealLocked(false)
	case domain.PhaseReveal:
		r.armLocked(remaining(), r.advanceLocked)
	case domain.PhaseCompleted:
		r.distributeLocked()
	}
	r.publishSnapshotLocked()
}

// Join adds a participant. Filling the room schedules the contest at once.
func (r *Room) Join(userID string) (domain.RoomSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.participants[userID]; ok {
		return domain.RoomSnapshot{}, domain.ErrAlreadyJoined
	}
	if !r.contest.Status.Joinable() || r.fetching {
		return domain.RoomSnapshot{}, domain.ErrContestNotJoinable
	}
	if len(r.order) >= r.contest.MaxParticipants {
		return domain.RoomSnapshot{}, domain.ErrContestFull
	}

	p := &domain.Participant{
		ContestID: r.contest.ID,
		UserID:    userID,
		JoinedAt:  r.now(),
		JoinSeq:   len(r.order),
		Connected: true,
		Answers:   make([]*domain.AnswerRecord, r.contest.QuestionCount),
	}
	r.participants[userID] = p
	r.order = append(r.order, p)
	r.emitLocked(domain.EventParticipantJoined, domain.ParticipantPayload{UserID: userID, ParticipantCount: len(r.order)})

	if len(r.order) == r.contest.MaxParticipants && r.phase == domain.PhaseWaiting {
		r.scheduleLocked()
	}
	r.publishSnapshotLocked()
	r.checkpointLocked()
	return *r.snapshot.Load(), nil
}

// Start lets the creator skip the rest of the lobby countdown.
func (r *Room) Start(userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if userID != r.contest.CreatorID {
		return domain.ErrNotCreator
	}
	switch r.phase {
	case domain.PhaseScheduled:
		return nil
	case domain.PhaseWaiting:
	default:
		return domain.ErrContestNotJoinable
	}
	if len(r.order) < r.minParticipants() {
		return domain.ErrInsufficientParticipants
	}
	r.scheduleLocked()
	r.publishSnapshotLocked()
	r.checkpointLocked()
	return nil
}

// Cancel lets the creator abort a contest that has not started.
func (r *Room) Cancel(userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if userID != r.contest.CreatorID {
		return domain.ErrNotCreator
	}
	if !r.contest.Status.Joinable() || r.fetching {
		return domain.ErrContestNotJoinable
	}
	r.cancelLocked(domain.ReasonCancelledByCreator)
	return nil
}

// SubmitAnswer records a participant's answer for the open question.
// submittedAt is when the gateway received the answer; zero means now.
func (r *Room) SubmitAnswer(userID string, questionIndex, selectedIndex int, submittedAt time.Time) (domain.AnswerRecord, error) {
	if selectedIndex < 0 {
		return domain.AnswerRecord{}, domain.ErrInvalidOption
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if questionIndex < 0 || questionIndex >= r.contest.QuestionCount {
		return domain.AnswerRecord{}, domain.ErrInvalidQuestionIndex
	}
	p, ok := r.participants[userID]
	if !ok {
		return domain.AnswerRecord{}, domain.ErrNotParticipant
	}
	if rec := p.Answers[questionIndex]; rec != nil {
		if rec.Answered() {
			return domain.AnswerRecord{}, domain.ErrDuplicateAnswer
		}
		return domain.AnswerRecord{}, domain.ErrAnswerWindowClosed
	}
	if r.questionClosedLocked(questionIndex) {
		return domain.AnswerRecord{}, domain.ErrAnswerWindowClosed
	}
	if r.phase != domain.PhaseQuestionActive || questionIndex != r.qIndex {
		return domain.AnswerRecord{}, domain.ErrNotInProgress
	}

	q := r.questions[questionIndex]
	if selectedIndex >= len(q.Options) {
		return domain.AnswerRecord{}, domain.ErrInvalidOption
	}

	now := r.now()
	if !now.Before(r.deadline) {
		// The deadline timer has not run yet; close the window here.
		r.lockQuestionLocked(false)
		return domain.AnswerRecord{}, domain.ErrAnswerWindowClosed
	}
	if submittedAt.After(r.deadline) {
		return domain.AnswerRecord{}, domain.ErrAnswerWindowClosed
	}
	if submittedAt.IsZero() || submittedAt.After(now) {
		submittedAt = now
	}

	selected := selectedIndex
	rec := &domain.AnswerRecord{
		ContestID:      r.contest.ID,
		ParticipantID:  userID,
		QuestionIndex:  questionIndex,
		SelectedIndex:  &selected,
		ResponseTimeMs: scoring.ClampResponse(submittedAt.Sub(r.revealedAt).Milliseconds(), q.TimeLimit.Milliseconds()),
		SubmittedAt:    submittedAt,
	}
	p.Answers[questionIndex] = rec
	receipt := *rec

	if r.allConnectedAnsweredLocked() {
		r.lockQuestionLocked(true)
	} else {
		r.publishSnapshotLocked()
		r.checkpointLocked()
	}
	return receipt, nil
}

// MarkDisconnected flags a participant as gone. An open question they have
// not answered is recorded as unanswered; they stay in the ranking.
func (r *Room) MarkDisconnected(userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[userID]
	if !ok {
		return domain.ErrNotParticipant
	}
	if !p.Connected {
		return nil
	}
	p.Connected = false

	if r.phase == domain.PhaseQuestionActive && p.Answers[r.qIndex] == nil {
		p.Answers[r.qIndex] = r.unansweredLocked(userID, r.qIndex)
	}
	r.emitLocked(domain.EventParticipantDisconnected, domain.ParticipantPayload{UserID: userID, ParticipantCount: len(r.order)})

	if r.phase == domain.PhaseQuestionActive && r.allConnectedAnsweredLocked() {
		r.lockQuestionLocked(true)
		return nil
	}
	r.publishSnapshotLocked()
	r.checkpointLocked()
	return nil
}

// MarkReconnected flags a participant as back. They may answer questions
// revealed from now on.
func (r *Room) MarkReconnected(userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[userID]
	if !ok {
		return domain.ErrNotParticipant
	}
	if p.Connected {
		return nil
	}
	p.Connected = true
	r.emitLocked(domain.EventParticipantReconnected, domain.ParticipantPayload{UserID: userID, ParticipantCount: len(r.order)})
	r.publishSnapshotLocked()
	r.checkpointLocked()
	return nil
}

// Snapshot returns the last published view without taking the room lock.
func (r *Room) Snapshot() domain.RoomSnapshot {
	return *r.snapshot.Load()
}

// Subscribe returns a channel of room events. The caller must invoke the
// returned cancel function to avoid leaks. The channel is closed once the
// room reaches a terminal phase.
func (r *Room) Subscribe() (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, r.deps.settings.SubscriberBuffer)

	r.mu.Lock()
	if r.phase.Terminal() {
		r.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	r.subscribers[ch] = struct{}{}
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		if _, ok := r.subscribers[ch]; ok {
			delete(r.subscribers, ch)
			close(ch)
		}
		r.mu.Unlock()
	}
	return ch, cancel
}

// State returns a deep copy of the room's checkpoint.
func (r *Room) State() domain.RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stateLocked()
}

// fail cancels the room after an unexpected error.
func (r *Room) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase.Terminal() {
		return
	}
	r.deps.logger.Error("room failed", "contest_id", r.contest.ID, "phase", r.phase, "error", err)
	r.cancelLocked(domain.ReasonInternalError)
}

func (r *Room) recoverInternal() {
	if rec := recover(); rec != nil {
		r.fail(fmt.Errorf("panic: %v", rec))
	}
}

func (r *Room) lobbyExpiredLocked() {
	if r.phase != domain.PhaseWaiting {
		return
	}
	if len(r.order) < r.minParticipants() {
		r.cancelLocked(domain.ReasonInsufficientParticipants)
		return
	}
	r.scheduleLocked()
	r.publishSnapshotLocked()
	r.checkpointLocked()
}

func (r *Room) scheduleLocked() {
	r.phase = domain.PhaseScheduled
	r.contest.Status = domain.StatusScheduled
	r.phaseEndsAt = r.now().Add(r.deps.settings.StartCountdown)
	r.armStartLocked(r.deps.settings.StartCountdown)
	r.emitLocked(domain.EventRoomScheduled, domain.ScheduledPayload{ParticipantCount: len(r.order), StartsAt: r.phaseEndsAt})
	r.deps.logger.Info("contest scheduled", "contest_id", r.contest.ID, "participants", len(r.order))
}

func (r *Room) armStartLocked(d time.Duration) {
	r.stopTimerLocked()
	r.timerGen++
	gen := r.timerGen
	r.timer = r.deps.clock.AfterFunc(d, func() { r.begin(gen) })
}

// begin moves a scheduled room into play. The question fetch runs without
// the room lock; the contest is no longer joinable while it is in flight.
func (r *Room) begin(gen uint64) {
	defer r.recoverInternal()

	r.mu.Lock()
	if gen != r.timerGen || r.phase != domain.PhaseScheduled || r.fetching {
		r.mu.Unlock()
		return
	}
	r.timer = nil
	r.fetching = true
	r.contest.Status = domain.StatusInProgress
	r.deps.hooks.releaseCode(r.contest.PrivateCode)
	contest := r.contestLocked()
	questions := r.questions
	r.publishSnapshotLocked()
	r.mu.Unlock()

	var err error
	if len(questions) == 0 {
		ctx, cancel := context.WithTimeout(context.Background(), r.deps.settings.FetchTimeout)
		questions, err = r.deps.source.FetchQuestions(ctx, contest)
		cancel()
	}
	if err == nil {
		questions, err = prepareQuestions(questions, contest)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetching = false
	if r.phase != domain.PhaseScheduled {
		return
	}
	if err != nil {
		r.deps.logger.Error("load questions", "contest_id", contest.ID, "error", err)
		r.cancelLocked(domain.ReasonInternalError)
		return
	}
	r.questions = questions
	r.emitLocked(domain.EventContestStarted, domain.StartedPayload{QuestionCount: len(questions)})
	r.activateLocked(0)
}

func prepareQuestions(questions []domain.Question, contest domain.Contest) ([]domain.Question, error) {
	if len(questions) < contest.QuestionCount {
		return nil, fmt.Errorf("contest %s wants %d questions, got %d: %w", contest.ID, contest.QuestionCount, len(questions), domain.ErrNotEnoughQuestions)
	}
	prepared := make([]domain.Question, contest.QuestionCount)
	for i := range prepared {
		q := questions[i]
		if err := validateQuestion(q); err != nil {
			return nil, err
		}
		if q.TimeLimit <= 0 {
			q.TimeLimit = contest.TimePerQuestion
		}
		prepared[i] = q
	}
	return prepared, nil
}

func (r *Room) activateLocked(i int) {
	q := r.questions[i]
	now := r.now()
	r.qIndex = i
	r.phase = domain.PhaseQuestionActive
	r.revealedAt = now
	r.deadline = now.Add(q.TimeLimit)
	r.phaseEndsAt = r.deadline
	r.armLocked(q.TimeLimit, func() { r.lockQuestionLocked(false) })

	r.emitLocked(domain.EventQuestionRevealed, domain.QuestionView{
		Index:       i,
		ID:          q.ID,
		Text:        q.Text,
		Options:     append([]string(nil), q.Options...),
		TimeLimitMs: q.TimeLimit.Milliseconds(),
		Deadline:    r.deadline,
	})
	r.publishSnapshotLocked()
	r.checkpointLocked()
}

// lockQuestionLocked closes the answer window of the open question and runs
// it straight through scoring into the reveal pause.
func (r *Room) lockQuestionLocked(early bool) {
	if r.phase != domain.PhaseQuestionActive {
		return
	}
	r.stopTimerLocked()
	r.phase = domain.PhaseQuestionLocked
	r.emitLocked(domain.EventQuestionLocked, domain.QuestionLockedPayload{QuestionIndex: r.qIndex, Early: early})
	r.revealLocked(early)
}

func (r *Room) revealLocked(early bool) {
	if r.phase != domain.PhaseQuestionLocked {
		return
	}
	points := r.scoreLocked(r.qIndex)

	r.phase = domain.PhaseReveal
	r.phaseEndsAt = r.now().Add(r.deps.settings.RevealDuration)
	r.armLocked(r.deps.settings.RevealDuration, r.advanceLocked)
	r.emitLocked(domain.EventQuestionScored, domain.QuestionScoredPayload{
		QuestionIndex:      r.qIndex,
		CorrectOptionIndex: r.questions[r.qIndex].CorrectOptionIndex,
		Points:             points,
		NextAt:             r.phaseEndsAt,
	})
	r.deps.logger.Debug("question scored", "contest_id", r.contest.ID, "question", r.qIndex, "early", early)
	r.publishSnapshotLocked()
	r.checkpointLocked()
}

// scoreLocked assigns points for question i exactly once per record.
func (r *Room) scoreLocked(i int) map[string]int {
	q := r.questions[i]
	points := make(map[string]int, len(r.order))
	for _, p := range r.order {
		rec := p.Answers[i]
		if rec == nil {
			rec = r.unansweredLocked(p.UserID, i)
			p.Answers[i] = rec
		}
		if !rec.Scored {
			rec.IsCorrect = scoring.IsCorrect(q, *rec)
			rec.PointsAwarded = scoring.Score(q, *rec)
			rec.Scored = true
			p.TotalScore += rec.PointsAwarded
			p.TotalResponseTimeMs += rec.ResponseTimeMs
			r.deps.hooks.persistAnswer(*rec)
		}
		points[p.UserID] = rec.PointsAwarded
	}
	r.scored[i] = true
	return points
}

// unansweredLocked builds the record of a participant who gave no answer.
// It counts as having used the whole window.
func (r *Room) unansweredLocked(userID string, i int) *domain.AnswerRecord {
	limit := r.contest.TimePerQuestion
	if i < len(r.questions) {
		limit = r.questions[i].TimeLimit
	}
	return &domain.AnswerRecord{
		ContestID:      r.contest.ID,
		ParticipantID:  userID,
		QuestionIndex:  i,
		ResponseTimeMs: limit.Milliseconds(),
	}
}

func (r *Room) advanceLocked() {
	if r.phase != domain.PhaseReveal {
		return
	}
	if r.qIndex+1 < len(r.questions) {
		r.activateLocked(r.qIndex + 1)
		return
	}
	r.completeLocked()
}

func (r *Room) completeLocked() {
	r.stopTimerLocked()
	r.phase = domain.PhaseCompleted
	r.contest.Status = domain.StatusCompleted
	r.phaseEndsAt = time.Time{}

	ranking := r.rankLocked()
	r.emitLocked(domain.EventContestCompleted, domain.CompletedPayload{Ranking: ranking})
	r.deps.logger.Info("contest completed", "contest_id", r.contest.ID, "participants", len(ranking))
	r.publishSnapshotLocked()
	r.checkpointLocked()
	r.distributeLocked()
}

// rankLocked assigns final ranks; ranks already assigned are kept.
func (r *Room) rankLocked() []domain.Standing {
	standings := make([]domain.Standing, 0, len(r.order))
	for _, p := range r.order {
		standings = append(standings, domain.Standing{
			UserID:              p.UserID,
			JoinSeq:             p.JoinSeq,
			JoinedAt:            p.JoinedAt,
			TotalScore:          p.TotalScore,
			TotalResponseTimeMs: p.TotalResponseTimeMs,
		})
	}
	ranked := scoring.Rank(standings)
	for _, s := range ranked {
		if p := r.participants[s.UserID]; p.Rank == 0 {
			p.Rank = s.Rank
		}
	}
	return ranked
}

func (r *Room) distributeLocked() {
	if r.phase != domain.PhaseCompleted || r.prizesComputed {
		return
	}
	ranking := r.rankLocked()
	table, err := scoring.ComputePayouts(scoring.PrizeInput{
		EntryFee:   r.contest.EntryFee,
		PrizeSplit: r.contest.PrizeSplit,
		Ranking:    ranking,
	})
	if err != nil {
		r.deps.logger.Error("compute payouts", "contest_id", r.contest.ID, "error", err)
		r.cancelLocked(domain.ReasonInternalError)
		return
	}
	r.prizesComputed = true
	r.prizes = &table
	r.phase = domain.PhasePrizesDistributed

	r.emitLocked(domain.EventPrizesDistributed, table)
	r.deps.hooks.persistResult(domain.ContestResult{
		Contest:     r.contestLocked(),
		Ranking:     ranking,
		Prizes:      table,
		CompletedAt: r.now(),
	})
	r.finishLocked()
}

func (r *Room) cancelLocked(reason string) {
	r.stopTimerLocked()
	r.phase = domain.PhaseCancelled
	r.contest.Status = domain.StatusCancelled
	r.reason = reason
	r.phaseEndsAt = time.Time{}

	refunds := make([]domain.Refund, 0, len(r.order))
	for _, p := range r.order {
		refunds = append(refunds, domain.Refund{UserID: p.UserID, Amount: r.contest.EntryFee})
	}
	r.emitLocked(domain.EventContestCancelled, domain.CancelledPayload{Reason: reason, Refunds: refunds})
	if len(refunds) > 0 {
		r.deps.hooks.persistRefund(domain.RefundOrder{
			ContestID: r.contest.ID,
			Reason:    reason,
			Refunds:   refunds,
			IssuedAt:  r.now(),
		})
	}
	r.deps.hooks.releaseCode(r.contest.PrivateCode)
	r.deps.logger.Info("contest cancelled", "contest_id", r.contest.ID, "reason", reason, "refunds", len(refunds))
	r.finishLocked()
}

func (r *Room) finishLocked() {
	r.publishSnapshotLocked()
	r.checkpointLocked()
	for ch := range r.subscribers {
		delete(r.subscribers, ch)
		close(ch)
	}
	r.deps.hooks.terminated(r.contest.ID)
}

func (r *Room) questionClosedLocked(i int) bool {
	switch r.phase {
	case domain.PhaseQuestionActive:
		return i < r.qIndex
	case domain.PhaseQuestionLocked, domain.PhaseReveal:
		return i <= r.qIndex
	case domain.PhaseCompleted, domain.PhasePrizesDistributed:
		return true
	}
	return false
}

func (r *Room) allConnectedAnsweredLocked() bool {
	for _, p := range r.order {
		if p.Connected && p.Answers[r.qIndex] == nil {
			return false
		}
	}
	return true
}

func (r *Room) minParticipants() int {
	if r.contest.MinParticipants > 0 {
		return r.contest.MinParticipants
	}
	return minParticipants
}

// armLocked replaces the pending timer with one that runs fn under the lock.
func (r *Room) armLocked(d time.Duration, fn func()) {
	r.stopTimerLocked()
	r.timerGen++
	gen := r.timerGen
	r.timer = r.deps.clock.AfterFunc(d, func() { r.fire(gen, fn) })
}

func (r *Room) fire(gen uint64, fn func()) {
	defer r.recoverInternal()
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.timerGen || r.phase.Terminal() {
		return
	}
	r.timer = nil
	fn()
}

func (r *Room) stopTimerLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.timerGen++
}

func (r *Room) emitLocked(typ domain.EventType, payload any) {
	r.seq++
	event := domain.Event{
		Type:      typ,
		ContestID: r.contest.ID,
		Seq:       r.seq,
		At:        r.now(),
		Payload:   payload,
	}
	for ch := range r.subscribers {
		select {
		case ch <- event:
		default:
			// Drop the oldest event so a slow reader never blocks the room.
			select {
			case <-ch:
			default:
			}
			ch <- event
		}
	}
	r.deps.hooks.publish(event)
}

func (r *Room) publishSnapshotLocked() {
	views := make([]domain.ParticipantView, 0, len(r.order))
	for _, p := range r.order {
		views = append(views, domain.ParticipantView{
			UserID:     p.UserID,
			Connected:  p.Connected,
			TotalScore: p.TotalScore,
			Rank:       p.Rank,
		})
	}
	snap := &domain.RoomSnapshot{
		ContestID:     r.contest.ID,
		Status:        r.contest.Status,
		Phase:         r.phase,
		QuestionIndex: r.qIndex,
		QuestionCount: r.contest.QuestionCount,
		Participants:  views,
		UpdatedAt:     r.now(),
	}
	if r.phase == domain.PhaseQuestionActive {
		snap.Deadline = r.deadline
	}
	r.snapshot.Store(snap)
}

func (r *Room) checkpointLocked() {
	r.deps.hooks.checkpoint(r.stateLocked())
}

func (r *Room) stateLocked() domain.RoomState {
	participants := make([]domain.Participant, 0, len(r.order))
	for _, p := range r.order {
		cp := *p
		cp.Answers = make([]*domain.AnswerRecord, len(p.Answers))
		for i, rec := range p.Answers {
			if rec != nil {
				dup := *rec
				cp.Answers[i] = &dup
			}
		}
		participants = append(participants, cp)
	}
	state := domain.RoomState{
		Contest:        r.contestLocked(),
		Participants:   participants,
		Questions:      r.questions,
		Phase:          r.phase,
		QuestionIndex:  r.qIndex,
		RevealedAt:     r.revealedAt,
		Deadline:       r.deadline,
		PhaseEndsAt:    r.phaseEndsAt,
		Scored:         append([]bool(nil), r.scored...),
		PrizesComputed: r.prizesComputed,
		Reason:         r.reason,
		Seq:            r.seq,
		SavedAt:        r.now(),
	}
	if r.prizes != nil {
		prizes := *r.prizes
		state.Prizes = &prizes
	}
	return state
}

func (r *Room) contestLocked() domain.Contest {
	c := r.contest
	c.PrizeSplit = append([]int(nil), r.contest.PrizeSplit...)
	return c
}

func (r *Room) now() time.Time {
	return r.deps.clock.Now()
}
