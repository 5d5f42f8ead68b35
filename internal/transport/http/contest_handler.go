package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"contest-engine/internal/app"
	"contest-engine/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type ContestHandler struct {
	engine *app.Engine
	logger *slog.Logger
}

func NewContestHandler(engine *app.Engine, logger *slog.Logger) *ContestHandler {
	return &ContestHandler{engine: engine, logger: logger}
}

type createContestRequest struct {
	Name              string          `json:"name"`
	CreatorID         string          `json:"creatorId"`
	EntryFee          decimal.Decimal `json:"entryFee"`
	MaxParticipants   int             `json:"maxParticipants"`
	MinParticipants   int             `json:"minParticipants"`
	QuestionCount     int             `json:"questionCount"`
	TimePerQuestionMs int64           `json:"timePerQuestionMs"`
	PrizeSplit        []int           `json:"prizeSplit"`
	QuestionSetID     string          `json:"questionSetId"`
	Private           bool            `json:"private"`
}

type userRequest struct {
	UserID string `json:"userId"`
}

type joinByCodeRequest struct {
	Code   string `json:"code"`
	UserID string `json:"userId"`
}

type answerRequest struct {
	UserID        string `json:"userId"`
	QuestionIndex int    `json:"questionIndex"`
	SelectedIndex int    `json:"selectedIndex"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *ContestHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createContestRequest
	if !h.decode(w, r, &req) {
		return
	}
	contest, err := h.engine.CreateContest(r.Context(), domain.ContestSpec{
		Name:            req.Name,
		CreatorID:       req.CreatorID,
		EntryFee:        req.EntryFee,
		MaxParticipants: req.MaxParticipants,
		MinParticipants: req.MinParticipants,
		QuestionCount:   req.QuestionCount,
		TimePerQuestion: time.Duration(req.TimePerQuestionMs) * time.Millisecond,
		PrizeSplit:      req.PrizeSplit,
		QuestionSetID:   req.QuestionSetID,
		Private:         req.Private,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, contest)
}

func (h *ContestHandler) Get(w http.ResponseWriter, r *http.Request) {
	snap, err := h.engine.GetSnapshot(r.Context(), chi.URLParam(r, "contestId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *ContestHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !h.decode(w, r, &req) {
		return
	}
	snap, err := h.engine.JoinContest(r.Context(), chi.URLParam(r, "contestId"), req.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *ContestHandler) JoinByCode(w http.ResponseWriter, r *http.Request) {
	var req joinByCodeRequest
	if !h.decode(w, r, &req) {
		return
	}
	snap, err := h.engine.JoinByCode(r.Context(), req.Code, req.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *ContestHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !h.decode(w, r, &req) {
		return
	}
	contestID := chi.URLParam(r, "contestId")
	if err := h.engine.StartContest(r.Context(), contestID, req.UserID); err != nil {
		h.writeError(w, err)
		return
	}
	h.Get(w, r)
}

func (h *ContestHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !h.decode(w, r, &req) {
		return
	}
	contestID := chi.URLParam(r, "contestId")
	if err := h.engine.CancelContest(r.Context(), contestID, req.UserID); err != nil {
		h.writeError(w, err)
		return
	}
	h.Get(w, r)
}

func (h *ContestHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !h.decode(w, r, &req) {
		return
	}
	receipt, err := h.engine.SubmitAnswer(r.Context(), chi.URLParam(r, "contestId"), req.UserID,
		req.QuestionIndex, req.SelectedIndex, h.engine.Clock().Now())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, receipt)
}

func (h *ContestHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{Code: "INVALID_REQUEST", Message: "invalid request body"}})
		return false
	}
	return true
}

func (h *ContestHandler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorBody{Error: errorDetail{Code: domain.Code(err), Message: err.Error()}})
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case domain.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrContestNotFound), errors.Is(err, domain.ErrQuestionSetNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotCreator), errors.Is(err, domain.ErrNotParticipant):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrContestFull),
		errors.Is(err, domain.ErrContestNotJoinable),
		errors.Is(err, domain.ErrAlreadyJoined),
		errors.Is(err, domain.ErrInsufficientParticipants),
		errors.Is(err, domain.ErrNotInProgress),
		errors.Is(err, domain.ErrAnswerWindowClosed),
		errors.Is(err, domain.ErrDuplicateAnswer),
		errors.Is(err, domain.ErrRoomExists):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
