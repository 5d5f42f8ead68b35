package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ContestStatus is the externally visible lifecycle of a contest.
type ContestStatus string

const (
	StatusWaiting    ContestStatus = "waiting"
	StatusScheduled  ContestStatus = "scheduled"
	StatusInProgress ContestStatus = "in_progress"
	StatusCompleted  ContestStatus = "completed"
	StatusCancelled  ContestStatus = "cancelled"
)

// Joinable reports whether new participants may still enter.
func (s ContestStatus) Joinable() bool {
	return s == StatusWaiting || s == StatusScheduled
}

// Phase is the room's internal state machine position.
type Phase string

const (
	PhaseWaiting           Phase = "waiting"
	PhaseScheduled         Phase = "scheduled"
	PhaseQuestionActive    Phase = "question_active"
	PhaseQuestionLocked    Phase = "question_locked"
	PhaseReveal            Phase = "reveal"
	PhaseCompleted         Phase = "completed"
	PhasePrizesDistributed Phase = "prizes_distributed"
	PhaseCancelled         Phase = "cancelled"
)

// Terminal reports whether no further transitions can happen.
func (p Phase) Terminal() bool {
	return p == PhasePrizesDistributed || p == PhaseCancelled
}

// Cancellation reasons carried by contest_cancelled events and refund orders.
const (
	ReasonInsufficientParticipants = "insufficient_participants"
	ReasonInternalError            = "internal_error"
	ReasonCancelledByCreator       = "cancelled_by_creator"
)

// ContestSpec is the creation request for a contest.
type ContestSpec struct {
	Name            string          `json:"name"`
	CreatorID       string          `json:"creatorId"`
	EntryFee        decimal.Decimal `json:"entryFee"`
	MaxParticipants int             `json:"maxParticipants"`
	MinParticipants int             `json:"minParticipants"` // defaults to 2 if zero
	QuestionCount   int             `json:"questionCount"`
	TimePerQuestion time.Duration   `json:"timePerQuestion"`
	PrizeSplit      []int           `json:"prizeSplit"`
	QuestionSetID   string          `json:"questionSetId"`
	Private         bool            `json:"private"`
}

// Contest is a single scheduled quiz competition.
type Contest struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	CreatorID       string          `json:"creatorId"`
	EntryFee        decimal.Decimal `json:"entryFee"`
	MaxParticipants int             `json:"maxParticipants"`
	MinParticipants int             `json:"minParticipants"`
	QuestionCount   int             `json:"questionCount"`
	TimePerQuestion time.Duration   `json:"timePerQuestion"`
	PrizeSplit      []int           `json:"prizeSplit"`
	QuestionSetID   string          `json:"questionSetId"`
	Status          ContestStatus   `json:"status"`
	PrivateCode     string          `json:"privateCode,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// Question is a multiple choice question with exactly one correct option.
type Question struct {
	ID                 string        `json:"id"`
	Text               string        `json:"text"`
	Options            []string      `json:"options"`
	CorrectOptionIndex int           `json:"correctOptionIndex"`
	TimeLimit          time.Duration `json:"timeLimit"` // defaults to the contest's TimePerQuestion if zero
}

// QuestionView is what participants see while a question is open.
type QuestionView struct {
	Index       int       `json:"index"`
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	Options     []string  `json:"options"`
	TimeLimitMs int64     `json:"timeLimitMs"`
	Deadline    time.Time `json:"deadline"`
}

// AnswerRecord is the single answer of one participant to one question.
// A nil SelectedIndex means nothing was submitted inside the window.
type AnswerRecord struct {
	ContestID      string    `json:"contestId"`
	ParticipantID  string    `json:"participantId"`
	QuestionIndex  int       `json:"questionIndex"`
	SelectedIndex  *int      `json:"selectedIndex"`
	ResponseTimeMs int64     `json:"responseTimeMs"`
	SubmittedAt    time.Time `json:"submittedAt,omitempty"`
	IsCorrect      bool      `json:"isCorrect"`
	PointsAwarded  int       `json:"pointsAwarded"`
	Scored         bool      `json:"scored"`
}

// Answered reports whether the participant actually submitted an option.
func (a AnswerRecord) Answered() bool {
	return a.SelectedIndex != nil
}

// Participant is a user that joined a contest.
type Participant struct {
	ContestID           string          `json:"contestId"`
	UserID              string          `json:"userId"`
	JoinedAt            time.Time       `json:"joinedAt"`
	JoinSeq             int             `json:"joinSeq"`
	Connected           bool            `json:"connected"`
	Answers             []*AnswerRecord `json:"answers"` // indexed by question, nil until recorded
	TotalScore          int             `json:"totalScore"`
	TotalResponseTimeMs int64           `json:"totalResponseTimeMs"`
	Rank                int             `json:"rank,omitempty"`
}

// Standing is a participant's final tally used for ranking and payouts.
type Standing struct {
	UserID              string    `json:"userId"`
	JoinSeq             int       `json:"joinSeq"`
	JoinedAt            time.Time `json:"joinedAt"`
	TotalScore          int       `json:"totalScore"`
	TotalResponseTimeMs int64     `json:"totalResponseTimeMs"`
	Rank                int       `json:"rank"`
}

// Payout is the prize for one ranked participant.
type Payout struct {
	Rank   int             `json:"rank"`
	UserID string          `json:"userId"`
	Amount decimal.Decimal `json:"amount"`
}

// PrizeTable is the outcome of prize computation for a contest.
type PrizeTable struct {
	TotalPool   decimal.Decimal `json:"totalPool"`
	PlatformFee decimal.Decimal `json:"platformFee"`
	NetPool     decimal.Decimal `json:"netPool"`
	Payouts     []Payout        `json:"payouts"`
}

// ContestResult is written once to storage when prizes are distributed.
type ContestResult struct {
	Contest     Contest    `json:"contest"`
	Ranking     []Standing `json:"ranking"`
	Prizes      PrizeTable `json:"prizes"`
	CompletedAt time.Time  `json:"completedAt"`
}

// Refund returns an entry fee to a participant.
type Refund struct {
	UserID string          `json:"userId"`
	Amount decimal.Decimal `json:"amount"`
}

// RefundOrder instructs the storage collaborator to refund a cancelled contest.
type RefundOrder struct {
	ContestID string    `json:"contestId"`
	Reason    string    `json:"reason"`
	Refunds   []Refund  `json:"refunds"`
	IssuedAt  time.Time `json:"issuedAt"`
}

// ParticipantView is a snapshot-friendly view of a participant.
type ParticipantView struct {
	UserID     string `json:"userId"`
	Connected  bool   `json:"connected"`
	TotalScore int    `json:"totalScore"`
	Rank       int    `json:"rank,omitempty"`
}

// RoomSnapshot is a read-only view of a room for status queries.
type RoomSnapshot struct {
	ContestID     string            `json:"contestId"`
	Status        ContestStatus     `json:"status"`
	Phase         Phase             `json:"phase"`
	QuestionIndex int               `json:"questionIndex"`
	QuestionCount int               `json:"questionCount"`
	Deadline      time.Time         `json:"deadline,omitempty"`
	Participants  []ParticipantView `json:"participants"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// RoomState is the re-derivable checkpoint of a room.
type RoomState struct {
	Contest        Contest       `json:"contest"`
	Participants   []Participant `json:"participants"`
	Questions      []Question    `json:"questions,omitempty"`
	Phase          Phase         `json:"phase"`
	QuestionIndex  int           `json:"questionIndex"`
	RevealedAt     time.Time     `json:"revealedAt,omitempty"`
	Deadline       time.Time     `json:"deadline,omitempty"`
	PhaseEndsAt    time.Time     `json:"phaseEndsAt,omitempty"`
	Scored         []bool        `json:"scored,omitempty"`
	PrizesComputed bool          `json:"prizesComputed"`
	Prizes         *PrizeTable   `json:"prizes,omitempty"`
	Reason         string        `json:"reason,omitempty"`
	// Seq is the sequence number of the last event emitted before the save.
	Seq     int64     `json:"seq"`
	SavedAt time.Time `json:"savedAt"`
}
