package domain

import "time"

// EventType names an observable room event.
type EventType string

const (
	EventParticipantJoined       EventType = "participant_joined"
	EventParticipantDisconnected EventType = "participant_disconnected"
	EventParticipantReconnected  EventType = "participant_reconnected"
	EventRoomScheduled           EventType = "room_scheduled"
	EventContestStarted          EventType = "contest_started"
	EventQuestionRevealed        EventType = "question_revealed"
	EventQuestionLocked          EventType = "question_locked"
	EventQuestionScored          EventType = "question_scored"
	EventContestCompleted        EventType = "contest_completed"
	EventPrizesDistributed       EventType = "prizes_distributed"
	EventContestCancelled        EventType = "contest_cancelled"
)

// Event is a JSON-serializable record of a room transition.
// Seq increases monotonically per contest.
type Event struct {
	Type      EventType `json:"type"`
	ContestID string    `json:"contestId"`
	Seq       int64     `json:"seq"`
	At        time.Time `json:"at"`
	Payload   any       `json:"payload,omitempty"`
}

type ParticipantPayload struct {
	UserID           string `json:"userId"`
	ParticipantCount int    `json:"participantCount"`
}

type ScheduledPayload struct {
	ParticipantCount int       `json:"participantCount"`
	StartsAt         time.Time `json:"startsAt"`
}

type StartedPayload struct {
	QuestionCount int `json:"questionCount"`
}

type QuestionLockedPayload struct {
	QuestionIndex int  `json:"questionIndex"`
	Early         bool `json:"early"`
}

type QuestionScoredPayload struct {
	QuestionIndex      int            `json:"questionIndex"`
	CorrectOptionIndex int            `json:"correctOptionIndex"`
	Points             map[string]int `json:"points"`
	NextAt             time.Time      `json:"nextAt"`
}

type CompletedPayload struct {
	Ranking []Standing `json:"ranking"`
}

type CancelledPayload struct {
	Reason  string   `json:"reason"`
	Refunds []Refund `json:"refunds"`
}
