package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-roulette-service/internal/domain"
)

// QuestionRepository reads the question bank from Postgres. The game never
// mutates questions; writes happen only through the seed tooling.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

func (r *QuestionRepository) IDsByTheme(ctx context.Context, theme domain.Theme) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM questions WHERE theme=$1`, string(theme))
	if err != nil {
		return nil, fmt.Errorf("query theme %q: %w", theme, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan question id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate theme %q: %w", theme, err)
	}
	return ids, nil
}

func (r *QuestionRepository) ByID(ctx context.Context, id int64) (domain.Question, error) {
	var (
		question domain.Question
		theme    string
		correct  string
		imageURL *string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, theme, statement, opt_a, opt_b, opt_c, opt_d, correct, image_url
		 FROM questions WHERE id=$1`, id).
		Scan(&question.ID, &theme, &question.Statement,
			&question.OptionA, &question.OptionB, &question.OptionC, &question.OptionD,
			&correct, &imageURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	if err != nil {
		return domain.Question{}, fmt.Errorf("load question %d: %w", id, err)
	}
	question.Theme = domain.Theme(theme)
	question.Correct = domain.OptionLetter(correct)
	if imageURL != nil {
		question.ImageURL = *imageURL
	}
	return question, nil
}
