package domain

import "errors"

var (
	// ErrInvalidContestSpec is wrapped with the offending field when a contest spec is rejected.
	ErrInvalidContestSpec = errors.New("invalid contest spec")
	// ErrInvalidOption is returned when a selected option index is outside the question's options.
	ErrInvalidOption = errors.New("invalid option index")
	// ErrInvalidQuestionIndex is returned when a question index is outside the contest.
	ErrInvalidQuestionIndex = errors.New("invalid question index")
	// ErrInvalidUserID is returned for an empty user id.
	ErrInvalidUserID = errors.New("user id is required")
	// ErrInvalidCode is returned for an empty private join code.
	ErrInvalidCode = errors.New("private code is required")

	// ErrContestNotFound is returned when no room exists for a contest ID or private code.
	ErrContestNotFound = errors.New("contest not found")
	// ErrRoomExists guards against a second room for the same contest ID.
	ErrRoomExists         = errors.New("room already exists for contest")
	ErrContestFull        = errors.New("contest is full")
	ErrContestNotJoinable = errors.New("contest is not joinable")
	ErrAlreadyJoined      = errors.New("user already joined contest")
	// ErrNotParticipant is returned when a user acts on a contest before joining.
	ErrNotParticipant = errors.New("user is not a participant")
	// ErrNotCreator is returned when a creator-only command comes from someone else.
	ErrNotCreator = errors.New("only the contest creator may do this")
	// ErrInsufficientParticipants is returned when a contest cannot start or pay out.
	ErrInsufficientParticipants = errors.New("not enough participants")
	ErrNotInProgress            = errors.New("question is not in progress")
	ErrAnswerWindowClosed       = errors.New("answer window closed")
	ErrDuplicateAnswer          = errors.New("answer already recorded")
	// ErrQuestionSetNotFound indicates the question source has no such set.
	ErrQuestionSetNotFound = errors.New("question set not found")
	// ErrNotEnoughQuestions indicates the question set is shorter than the contest.
	ErrNotEnoughQuestions = errors.New("question set has fewer questions than the contest needs")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrInvalidContestSpec, "INVALID_CONTEST_SPEC"},
	{ErrInvalidOption, "INVALID_OPTION"},
	{ErrInvalidQuestionIndex, "INVALID_QUESTION_INDEX"},
	{ErrInvalidUserID, "INVALID_USER_ID"},
	{ErrInvalidCode, "INVALID_CODE"},
	{ErrContestNotFound, "CONTEST_NOT_FOUND"},
	{ErrRoomExists, "ROOM_EXISTS"},
	{ErrContestFull, "CONTEST_FULL"},
	{ErrContestNotJoinable, "CONTEST_NOT_JOINABLE"},
	{ErrAlreadyJoined, "ALREADY_JOINED"},
	{ErrNotParticipant, "NOT_PARTICIPANT"},
	{ErrNotCreator, "NOT_CREATOR"},
	{ErrInsufficientParticipants, "INSUFFICIENT_PARTICIPANTS"},
	{ErrNotInProgress, "NOT_IN_PROGRESS"},
	{ErrAnswerWindowClosed, "ANSWER_WINDOW_CLOSED"},
	{ErrDuplicateAnswer, "DUPLICATE_ANSWER"},
	{ErrQuestionSetNotFound, "QUESTION_SET_NOT_FOUND"},
	{ErrNotEnoughQuestions, "NOT_ENOUGH_QUESTIONS"},
}

// Code maps an engine error to a stable identifier transports can render.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "INTERNAL"
}

// IsValidation reports whether err was rejected before reaching a room.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidContestSpec) ||
		errors.Is(err, ErrInvalidOption) ||
		errors.Is(err, ErrInvalidQuestionIndex) ||
		errors.Is(err, ErrInvalidUserID) ||
		errors.Is(err, ErrInvalidCode)
}
