package postgres

import (
	"context"
	"fmt"
	"time"

	"contest-engine/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type answerModel struct {
	bun.BaseModel `bun:"table:contest_answers,alias:ca"`

	ContestID      string    `bun:"contest_id,pk"`
	ParticipantID  string    `bun:"participant_id,pk"`
	QuestionIndex  int       `bun:"question_index,pk"`
	SelectedIndex  *int      `bun:"selected_index"`
	ResponseTimeMs int64     `bun:"response_time_ms,notnull"`
	SubmittedAt    time.Time `bun:"submitted_at,nullzero"`
	IsCorrect      bool      `bun:"is_correct,notnull"`
	PointsAwarded  int       `bun:"points_awarded,notnull"`
}

type resultModel struct {
	bun.BaseModel `bun:"table:contest_results,alias:cr"`

	ContestID   string            `bun:"contest_id,pk"`
	Contest     domain.Contest    `bun:"contest,type:jsonb"`
	Ranking     []domain.Standing `bun:"ranking,type:jsonb"`
	TotalPool   decimal.Decimal   `bun:"total_pool,type:numeric"`
	PlatformFee decimal.Decimal   `bun:"platform_fee,type:numeric"`
	NetPool     decimal.Decimal   `bun:"net_pool,type:numeric"`
	CompletedAt time.Time         `bun:"completed_at,notnull"`
	Payouts     []*payoutModel    `bun:"rel:has-many,join:contest_id=contest_id"`
}

type payoutModel struct {
	bun.BaseModel `bun:"table:contest_payouts,alias:cp"`

	ContestID string          `bun:"contest_id,pk"`
	Rank      int             `bun:"rank,pk"`
	UserID    string          `bun:"user_id,notnull"`
	Amount    decimal.Decimal `bun:"amount,type:numeric"`
}

type refundModel struct {
	bun.BaseModel `bun:"table:contest_refunds,alias:rf"`

	ContestID string          `bun:"contest_id,pk"`
	UserID    string          `bun:"user_id,pk"`
	Amount    decimal.Decimal `bun:"amount,type:numeric"`
	Reason    string          `bun:"reason,notnull"`
	IssuedAt  time.Time       `bun:"issued_at,notnull"`
}

// ResultStore persists answers, final results and refunds. Every write is
// keyed by its natural identity and ignores conflicts, so retried writes
// from the outbox are harmless.
type ResultStore struct {
	db *bun.DB
}

func NewResultStore(db *bun.DB) *ResultStore {
	return &ResultStore{db: db}
}

func (s *ResultStore) PersistAnswer(ctx context.Context, record domain.AnswerRecord) error {
	model := toAnswerModel(record)
	if _, err := s.db.NewInsert().Model(&model).On("CONFLICT DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("persist answer: %w", err)
	}
	return nil
}

func (s *ResultStore) PersistContestResult(ctx context.Context, result domain.ContestResult) error {
	model, payouts := toResultModels(result)
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(&model).On("CONFLICT DO NOTHING").Exec(ctx); err != nil {
			return fmt.Errorf("persist contest result: %w", err)
		}
		if len(payouts) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&payouts).On("CONFLICT DO NOTHING").Exec(ctx); err != nil {
			return fmt.Errorf("persist payouts: %w", err)
		}
		return nil
	})
}

func (s *ResultStore) PersistRefund(ctx context.Context, order domain.RefundOrder) error {
	refunds := toRefundModels(order)
	if len(refunds) == 0 {
		return nil
	}
	if _, err := s.db.NewInsert().Model(&refunds).On("CONFLICT DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("persist refunds: %w", err)
	}
	return nil
}

// ContestResult reads back a stored result with its payouts.
func (s *ResultStore) ContestResult(ctx context.Context, contestID string) (domain.ContestResult, error) {
	var model resultModel
	err := s.db.NewSelect().
		Model(&model).
		Relation("Payouts", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("cp.rank ASC")
		}).
		Where("cr.contest_id = ?", contestID).
		Scan(ctx)
	if err != nil {
		return domain.ContestResult{}, fmt.Errorf("load contest result: %w", err)
	}
	return fromResultModel(model), nil
}

// Answers lists the stored answers of a contest in question order.
func (s *ResultStore) Answers(ctx context.Context, contestID string) ([]domain.AnswerRecord, error) {
	var models []answerModel
	err := s.db.NewSelect().
		Model(&models).
		Where("contest_id = ?", contestID).
		Order("question_index ASC", "participant_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	records := make([]domain.AnswerRecord, 0, len(models))
	for _, m := range models {
		records = append(records, domain.AnswerRecord{
			ContestID:      m.ContestID,
			ParticipantID:  m.ParticipantID,
			QuestionIndex:  m.QuestionIndex,
			SelectedIndex:  m.SelectedIndex,
			ResponseTimeMs: m.ResponseTimeMs,
			SubmittedAt:    m.SubmittedAt,
			IsCorrect:      m.IsCorrect,
			PointsAwarded:  m.PointsAwarded,
			Scored:         true,
		})
	}
	return records, nil
}

func toAnswerModel(record domain.AnswerRecord) answerModel {
	return answerModel{
		ContestID:      record.ContestID,
		ParticipantID:  record.ParticipantID,
		QuestionIndex:  record.QuestionIndex,
		SelectedIndex:  record.SelectedIndex,
		ResponseTimeMs: record.ResponseTimeMs,
		SubmittedAt:    record.SubmittedAt,
		IsCorrect:      record.IsCorrect,
		PointsAwarded:  record.PointsAwarded,
	}
}

func toResultModels(result domain.ContestResult) (resultModel, []*payoutModel) {
	payouts := make([]*payoutModel, 0, len(result.Prizes.Payouts))
	for _, p := range result.Prizes.Payouts {
		payouts = append(payouts, &payoutModel{
			ContestID: result.Contest.ID,
			Rank:      p.Rank,
			UserID:    p.UserID,
			Amount:    p.Amount,
		})
	}
	return resultModel{
		ContestID:   result.Contest.ID,
		Contest:     result.Contest,
		Ranking:     result.Ranking,
		TotalPool:   result.Prizes.TotalPool,
		PlatformFee: result.Prizes.PlatformFee,
		NetPool:     result.Prizes.NetPool,
		CompletedAt: result.CompletedAt,
	}, payouts
}

func fromResultModel(m resultModel) domain.ContestResult {
	payouts := make([]domain.Payout, 0, len(m.Payouts))
	for _, p := range m.Payouts {
		payouts = append(payouts, domain.Payout{Rank: p.Rank, UserID: p.UserID, Amount: p.Amount})
	}
	return domain.ContestResult{
		Contest: m.Contest,
		Ranking: m.Ranking,
		Prizes:  domain.PrizeTable{
			TotalPool:   m.TotalPool,
			PlatformFee: m.PlatformFee,
			NetPool:     m.NetPool,
			Payouts:     payouts,
		},
		CompletedAt: m.CompletedAt,
	}
}

func toRefundModels(order domain.RefundOrder) []refundModel {
	refunds := make([]refundModel, 0, len(order.Refunds))
	for _, r := range order.Refunds {
		refunds = append(refunds, refundModel{
			ContestID: order.ContestID,
			UserID:    r.UserID,
			Amount:    r.Amount,
			Reason:    order.Reason,
			IssuedAt:  order.IssuedAt,
		})
	}
	return refunds
}
