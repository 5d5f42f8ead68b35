package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"contest-engine/internal/domain"
	"golang.org/x/sync/singleflight"
)

// QuestionLoader fetches a question set from a backing store (e.g., Postgres).
type QuestionLoader interface {
	LoadQuestionSet(ctx context.Context, setID string) ([]domain.Question, error)
}

// QuestionSource caches question sets with a TTL to avoid repeated DB hits
// when many contests share a set.
type QuestionSource struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedSet
}

type cachedSet struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionSource(loader QuestionLoader, ttl time.Duration) *QuestionSource {
	return &QuestionSource{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedSet),
	}
}

// FetchQuestions implements app.QuestionSource.
func (s *QuestionSource) FetchQuestions(ctx context.Context, contest domain.Contest) ([]domain.Question, error) {
	questions, err := s.loadSet(ctx, contest.QuestionSetID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Question, len(questions))
	copy(out, questions)
	return out, nil
}

func (s *QuestionSource) loadSet(ctx context.Context, setID string) ([]domain.Question, error) {
	now := s.clock()

	s.mu.RLock()
	if entry, ok := s.cache[setID]; ok && entry.expiresAt.After(now) {
		s.mu.RUnlock()
		return entry.questions, nil
	}
	s.mu.RUnlock()

	result, err, _ := s.sf.Do(setID, func() (interface{}, error) {
		now := s.clock()
		s.mu.RLock()
		if entry, ok := s.cache[setID]; ok && entry.expiresAt.After(now) {
			s.mu.RUnlock()
			return entry.questions, nil
		}
		s.mu.RUnlock()

		questions, err := s.loader.LoadQuestionSet(ctx, setID)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.cache[setID] = cachedSet{
			questions: questions,
			expiresAt: now.Add(s.ttlWithJitterLocked()),
		}
		s.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (s *QuestionSource) ttlWithJitterLocked() time.Duration {
	if s.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(s.ttl) / 10
	return s.ttl + time.Duration(s.rnd.Int63n(jitterMax+1))
}

// StaticQuestionLoader is a simple loader backed by an in-memory map (useful for tests/demos).
type StaticQuestionLoader struct {
	sets map[string][]domain.Question
}

func NewStaticQuestionLoader(sets map[string][]domain.Question) *StaticQuestionLoader {
	return &StaticQuestionLoader{sets: sets}
}

func (l *StaticQuestionLoader) LoadQuestionSet(_ context.Context, setID string) ([]domain.Question, error) {
	if questions, ok := l.sets[setID]; ok {
		return questions, nil
	}
	return nil, domain.ErrQuestionSetNotFound
}
