package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"quiz-roulette-service/internal/domain"
)

// RoundStore abstracts how per-session round state is stored (in-memory, Redis, etc).
type RoundStore interface {
	Get(ctx context.Context, sessionID string) (domain.RoundState, bool, error)
	Put(ctx context.Context, sessionID string, state domain.RoundState) error
	Delete(ctx context.Context, sessionID string) error
}

// QuestionRepository is the read-only question bank.
type QuestionRepository interface {
	IDsByTheme(ctx context.Context, theme domain.Theme) ([]int64, error)
	ByID(ctx context.Context, id int64) (domain.Question, error)
}

// QuestionTurn is the next question to present, paired with its anti-replay token.
type QuestionTurn struct {
	Question     domain.Question
	Token        string
	Score        int
	ShowRoulette bool
}

// ContinueDecision tells the caller whether the round goes on or why it ended.
type ContinueDecision struct {
	Next   bool
	Reason domain.EndReason
	Score  int
}

// RoundService drives a single player's round: question sequencing, answer
// validation with anti-replay tokens, and round termination. All state lives
// in the RoundStore; the service itself holds nothing between calls.
type RoundService struct {
	rounds    RoundStore
	questions QuestionRepository
	scoreCap  int

	mu       sync.Mutex
	rnd      *rand.Rand
	newToken func() string
}

func NewRoundService(rounds RoundStore, questions QuestionRepository, scoreCap int) *RoundService {
	return NewRoundServiceWithRand(rounds, questions, scoreCap,
		rand.New(rand.NewSource(time.Now().UnixNano())), uuid.NewString)
}

// NewRoundServiceWithRand allows a seeded source and token generator for
// deterministic tests. Only the anti-replay token needs unguessable randomness;
// theme and queue draws just need to be uniform.
func NewRoundServiceWithRand(rounds RoundStore, questions QuestionRepository, scoreCap int, rnd *rand.Rand, newToken func() string) *RoundService {
	if scoreCap <= 0 {
		scoreCap = 30
	}
	return &RoundService{
		rounds:    rounds,
		questions: questions,
		scoreCap:  scoreCap,
		rnd:       rnd,
		newToken:  newToken,
	}
}

// ScoreCap returns the score at which a round ends as completed.
func (s *RoundService) ScoreCap() int {
	return s.scoreCap
}

// StartRound creates a fresh round for the session, discarding any previous
// one: a uniformly random theme from themes (all seven when empty) and a
// shuffled queue of every question id in that theme.
func (s *RoundService) StartRound(ctx context.Context, sessionID, nickname string, themes []domain.Theme) (domain.RoundState, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" || utf8.RuneCountInString(nickname) > 50 {
		return domain.RoundState{}, domain.ErrInvalidNickname
	}
	if len(themes) == 0 {
		themes = domain.Themes()
	}

	s.mu.Lock()
	theme := themes[s.rnd.Intn(len(themes))]
	s.mu.Unlock()

	ids, err := s.questions.IDsByTheme(ctx, theme)
	if err != nil {
		return domain.RoundState{}, fmt.Errorf("load theme %q: %w", theme, err)
	}
	queue := make([]int64, len(ids))
	copy(queue, ids)
	s.mu.Lock()
	s.rnd.Shuffle(len(queue), func(i, j int) {
		queue[i], queue[j] = queue[j], queue[i]
	})
	s.mu.Unlock()

	state := domain.RoundState{
		Nickname: nickname,
		Theme:    theme,
		Queue:    queue,
		Asked:    []int64{},
	}
	if err := s.rounds.Put(ctx, sessionID, state); err != nil {
		return domain.RoundState{}, fmt.Errorf("store round: %w", err)
	}
	return state, nil
}

// NextQuestion returns the question the session should see now. Re-fetching
// before answering returns the same question and token; the round never
// advances past an unanswered question. Returns domain.ErrRoundComplete once
// the queue is exhausted.
func (s *RoundService) NextQuestion(ctx context.Context, sessionID string) (QuestionTurn, error) {
	state, ok, err := s.rounds.Get(ctx, sessionID)
	if err != nil {
		return QuestionTurn{}, fmt.Errorf("load round: %w", err)
	}
	if !ok {
		return QuestionTurn{}, domain.ErrNoActiveRound
	}

	dirty := false

	// The roulette reveal happens exactly once, on the first question.
	showRoulette := false
	if len(state.Asked) == 0 && !state.RouletteShown {
		showRoulette = true
		state.RouletteShown = true
		dirty = true
	}

	// Unread feedback is abandoned when the caller asks for a question.
	if state.Feedback != nil {
		state.Feedback = nil
		dirty = true
	}

	// Idempotent re-fetch of the in-flight question (page refresh).
	if state.Current != nil {
		question, err := s.questions.ByID(ctx, state.Current.QuestionID)
		if err == nil {
			if dirty {
				if err := s.rounds.Put(ctx, sessionID, state); err != nil {
					return QuestionTurn{}, fmt.Errorf("store round: %w", err)
				}
			}
			return QuestionTurn{
				Question:     question,
				Token:        state.Current.Token,
				Score:        state.Score(),
				ShowRoulette: showRoulette,
			}, nil
		}
		if !errors.Is(err, domain.ErrQuestionNotFound) {
			return QuestionTurn{}, fmt.Errorf("load question %d: %w", state.Current.QuestionID, err)
		}
		// Orphaned reference: drop it and fall through to normal selection.
		state.Queue = removeID(state.Queue, state.Current.QuestionID)
		state.Current = nil
		dirty = true
	}

	orphanSkipped := false
	for _, id := range state.Queue {
		if state.HasAsked(id) {
			continue
		}
		question, err := s.questions.ByID(ctx, id)
		if errors.Is(err, domain.ErrQuestionNotFound) {
			// One orphaned id is retried past; a second one is a
			// data-integrity fault, not something to loop over.
			if orphanSkipped {
				return QuestionTurn{}, fmt.Errorf("question bank integrity, id %d: %w", id, err)
			}
			orphanSkipped = true
			continue
		}
		if err != nil {
			return QuestionTurn{}, fmt.Errorf("load question %d: %w", id, err)
		}

		state.Current = &domain.CurrentQuestion{
			QuestionID: id,
			Token:      s.newToken(),
		}
		if err := s.rounds.Put(ctx, sessionID, state); err != nil {
			return QuestionTurn{}, fmt.Errorf("store round: %w", err)
		}
		return QuestionTurn{
			Question:     question,
			Token:        state.Current.Token,
			Score:        state.Score(),
			ShowRoulette: showRoulette,
		}, nil
	}

	if dirty {
		if err := s.rounds.Put(ctx, sessionID, state); err != nil {
			return QuestionTurn{}, fmt.Errorf("store round: %w", err)
		}
	}
	return QuestionTurn{}, domain.ErrRoundComplete
}

// SubmitAnswer validates the submission against the in-flight question and
// applies it: the queue slot is consumed regardless of correctness, the id
// joins the asked set only when correct, and feedback is staged for the next
// fetch. A stale or mismatched (questionID, token) pair returns
// domain.ErrAnswerRejected and leaves the round untouched. The returned int
// is the score after the submission.
func (s *RoundService) SubmitAnswer(ctx context.Context, sessionID string, questionID int64, token, picked string, correct domain.OptionLetter) (domain.AnswerFeedback, int, error) {
	state, ok, err := s.rounds.Get(ctx, sessionID)
	if err != nil {
		return domain.AnswerFeedback{}, 0, fmt.Errorf("load round: %w", err)
	}
	if !ok {
		return domain.AnswerFeedback{}, 0, domain.ErrNoActiveRound
	}
	if state.Current == nil || state.Current.QuestionID != questionID || state.Current.Token != token {
		return domain.AnswerFeedback{}, state.Score(), domain.ErrAnswerRejected
	}

	picked = strings.ToUpper(strings.TrimSpace(picked))
	timedOut := picked == domain.TimeoutAnswer
	wasCorrect := !timedOut && domain.OptionLetter(picked) == correct

	state.Queue = removeID(state.Queue, questionID)
	state.Current = nil
	if wasCorrect && !state.HasAsked(questionID) {
		state.Asked = append(state.Asked, questionID)
	}

	feedback := domain.AnswerFeedback{
		QuestionID: questionID,
		WasCorrect: wasCorrect,
		TimedOut:   timedOut,
		Correct:    correct,
	}
	if letter, ok := domain.ParseOption(picked); ok {
		feedback.Picked = &letter
	}
	state.Feedback = &feedback

	if err := s.rounds.Put(ctx, sessionID, state); err != nil {
		return domain.AnswerFeedback{}, 0, fmt.Errorf("store round: %w", err)
	}
	return feedback, state.Score(), nil
}

// ConsumeFeedback returns the staged feedback and clears it; nil when absent.
func (s *RoundService) ConsumeFeedback(ctx context.Context, sessionID string) (*domain.AnswerFeedback, int, error) {
	state, ok, err := s.rounds.Get(ctx, sessionID)
	if err != nil {
		return nil, 0, fmt.Errorf("load round: %w", err)
	}
	if !ok {
		return nil, 0, domain.ErrNoActiveRound
	}
	if state.Feedback == nil {
		return nil, state.Score(), nil
	}
	feedback := state.Feedback
	state.Feedback = nil
	if err := s.rounds.Put(ctx, sessionID, state); err != nil {
		return nil, 0, fmt.Errorf("store round: %w", err)
	}
	return feedback, state.Score(), nil
}

// Continue decides whether the round goes on after the last outcome: wrong
// and timeout end it immediately, reaching the score cap ends it as
// completed, anything else proceeds to the next question.
func (s *RoundService) Continue(ctx context.Context, sessionID, lastOutcome string) (ContinueDecision, error) {
	state, ok, err := s.rounds.Get(ctx, sessionID)
	if err != nil {
		return ContinueDecision{}, fmt.Errorf("load round: %w", err)
	}
	if !ok {
		return ContinueDecision{}, domain.ErrNoActiveRound
	}

	score := state.Score()
	switch domain.EndReason(lastOutcome) {
	case domain.EndWrong:
		return ContinueDecision{Reason: domain.EndWrong, Score: score}, nil
	case domain.EndTimeout:
		return ContinueDecision{Reason: domain.EndTimeout, Score: score}, nil
	}
	if score >= s.scoreCap {
		return ContinueDecision{Reason: domain.EndCompleted, Score: score}, nil
	}
	return ContinueDecision{Next: true, Score: score}, nil
}

// EndRound destroys the session's round and returns its final state, so the
// caller can record the score. A second call (end-screen refresh) finds no
// round and cannot double-record.
func (s *RoundService) EndRound(ctx context.Context, sessionID string) (domain.RoundState, error) {
	state, ok, err := s.rounds.Get(ctx, sessionID)
	if err != nil {
		return domain.RoundState{}, fmt.Errorf("load round: %w", err)
	}
	if !ok {
		return domain.RoundState{}, domain.ErrNoActiveRound
	}
	if err := s.rounds.Delete(ctx, sessionID); err != nil {
		return domain.RoundState{}, fmt.Errorf("delete round: %w", err)
	}
	return state, nil
}

func removeID(ids []int64, id int64) []int64 {
	for i, candidate := range ids {
		if candidate == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
