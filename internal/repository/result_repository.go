package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-mocktest/internal/model"
)

// ResultRepository reads persisted exam results. Writes go through the
// result worker.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

// ListByTest returns the most recent results for a test, newest first, with
// the total number of results stored for it.
func (r *ResultRepository) ListByTest(ctx context.Context, testID string, limit, offset int) ([]model.ExamResult, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_results WHERE test_id = $1`, testID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count results: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT session_id, test_id, score, total_marks, correct, incorrect, unattempted,
		        time_taken_minutes, reason, language, started_at, submitted_at
		 FROM exam_results
		 WHERE test_id = $1
		 ORDER BY submitted_at DESC
		 LIMIT $2 OFFSET $3`, testID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var results []model.ExamResult
	for rows.Next() {
		var e model.ExamResult
		if err := rows.Scan(
			&e.SessionID, &e.TestID, &e.Score, &e.TotalMarks, &e.Correct, &e.Incorrect, &e.Unattempted,
			&e.TimeTakenMinutes, &e.Reason, &e.Language, &e.StartedAt, &e.SubmittedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan result: %w", err)
		}
		results = append(results, e)
	}
	return results, total, rows.Err()
}
