package memory

import (
	"context"

	"quiz-roulette-service/internal/domain"
)

// QuestionBank is a static in-memory question repository (useful for
// tests/demos, and as the loader behind caching layers).
type QuestionBank struct {
	byID    map[int64]domain.Question
	byTheme map[domain.Theme][]int64
}

func NewQuestionBank(questions []domain.Question) *QuestionBank {
	bank := &QuestionBank{
		byID:    make(map[int64]domain.Question, len(questions)),
		byTheme: make(map[domain.Theme][]int64),
	}
	for _, question := range questions {
		bank.byID[question.ID] = question
		bank.byTheme[question.Theme] = append(bank.byTheme[question.Theme], question.ID)
	}
	return bank
}

func (b *QuestionBank) IDsByTheme(_ context.Context, theme domain.Theme) ([]int64, error) {
	ids := b.byTheme[theme]
	out := make([]int64, len(ids))
	copy(out, ids)
	return out, nil
}

func (b *QuestionBank) ByID(_ context.Context, id int64) (domain.Question, error) {
	question, ok := b.byID[id]
	if !ok {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return question, nil
}
