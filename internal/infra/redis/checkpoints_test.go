package redis

import (
	"context"
	"testing"
	"time"

	"contest-engine/internal/domain"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
)

func TestCheckpointsRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	checkpoints := NewCheckpoints(newClient(mr), time.Hour)
	ctx := context.Background()
	created := time.Unix(1_700_000_000, 0).UTC()

	selected := 1
	older := domain.RoomState{
		Contest:      domain.Contest{ID: "c-1", EntryFee: decimal.RequireFromString("12.50"), QuestionCount: 1, CreatedAt: created},
		Participants: []domain.Participant{{
			UserID:  "A",
			Answers: []*domain.AnswerRecord{{ParticipantID: "A", SelectedIndex: &selected, ResponseTimeMs: 800}},
		}},
		Phase:  domain.PhaseQuestionActive,
		Scored: []bool{false},
	}
	newer := domain.RoomState{
		Contest: domain.Contest{ID: "c-2", CreatedAt: created.Add(time.Minute)},
		Phase:   domain.PhaseWaiting,
	}
	for _, s := range []domain.RoomState{newer, older} {
		if err := checkpoints.SaveRoomState(ctx, s); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	mr.Set("contest:state:broken", "{not json")

	states, err := checkpoints.LoadRoomStates(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(states) != 2 {
		t.Fatalf("expected 2 states, got %d", len(states))
	}
	if states[0].Contest.ID != "c-1" {
		t.Fatalf("expected oldest contest first, got %s", states[0].Contest.ID)
	}
	got := states[0]
	if !got.Contest.EntryFee.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("entry fee lost precision: %s", got.Contest.EntryFee)
	}
	rec := got.Participants[0].Answers[0]
	if rec == nil || rec.SelectedIndex == nil || *rec.SelectedIndex != 1 || rec.ResponseTimeMs != 800 {
		t.Fatalf("answer record not restored: %+v", rec)
	}

	if err := checkpoints.DeleteRoomState(ctx, "c-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists("contest:state:c-1") {
		t.Fatalf("expected state deleted")
	}
}

func TestCheckpointsEmpty(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	states, err := NewCheckpoints(newClient(mr), 0).LoadRoomStates(context.Background())
	if err != nil || len(states) != 0 {
		t.Fatalf("expected no states, got %d err=%v", len(states), err)
	}
}
