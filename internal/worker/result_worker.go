package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-mocktest/internal/config"
	"github.com/stemsi/exstem-mocktest/internal/model"
)

const (
	ResultBatchSize    = 50
	ResultBatchTimeout = 2 * time.Second
	ResultPollTimeout  = 1 * time.Second
	// ResultMaxAttempts is how many single-row inserts a result gets before
	// it is parked on the dead-letter list.
	ResultMaxAttempts = 5
)

// ResultWorker drains the persist queue into the exam_results table.
type ResultWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewResultWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ResultWorker {
	return &ResultWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "result_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *ResultWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ResultWorker started")

	batch := make([]*model.ExamResult, 0, ResultBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= ResultBatchSize || time.Since(lastFlush) >= ResultBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Int("pending", len(batch)).Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, ResultPollTimeout, config.WorkerKey.PersistResultsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var r model.ExamResult
			if err := json.Unmarshal([]byte(item[1]), &r); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}
			if r.SessionID == uuid.Nil {
				w.log.Error().Msg("Result without session id dropped")
				continue
			}

			batch = append(batch, &r)
		}
	}
}

// ----------------------------------------------------------------
// Batch insert wrapper
// ----------------------------------------------------------------

func (w *ResultWorker) flushSafe(ctx context.Context, batch []*model.ExamResult) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("batch", len(batch)).Msg("bulk result insert failed, using fallback")

		for _, r := range batch {
			if err := w.persistSingle(ctx, r); err != nil {
				w.retry(ctx, r, err)
			}
		}
		return
	}

	w.log.Debug().Int("batch", len(batch)).Msg("Results persisted")
}

// retry puts a failed result back on the queue, or on the dead-letter list
// once it has used up its attempts.
func (w *ResultWorker) retry(ctx context.Context, r *model.ExamResult, cause error) {
	key := retryKey(r)
	log := w.log.With().
		Err(cause).
		Str("session_id", r.SessionID.String()).
		Int("attempts", r.Attempts).
		Logger()
	if key == config.WorkerKey.PersistResultsDeadLetter {
		log.Error().Msg("persistSingle failed, parking result on dead-letter list")
	} else {
		log.Warn().Msg("persistSingle failed, requeueing")
	}

	raw, err := json.Marshal(r)
	if err != nil {
		log.Error().AnErr("marshal_err", err).Msg("Result could not be encoded, dropped")
		return
	}
	if err := w.rdb.RPush(ctx, key, raw).Err(); err != nil {
		log.Error().AnErr("push_err", err).Str("key", key).Msg("Result requeue failed, result lost")
	}
}

// retryKey counts the failed attempt on r and picks where it goes next.
func retryKey(r *model.ExamResult) string {
	r.Attempts++
	if r.Attempts >= ResultMaxAttempts {
		return config.WorkerKey.PersistResultsDeadLetter
	}
	return config.WorkerKey.PersistResultsQueue
}

// resultColumns is a batch split into the parallel arrays UNNEST expects.
type resultColumns struct {
	sessionIDs   []uuid.UUID
	testIDs      []string
	scores       []float64
	totals       []float64
	correct      []int
	incorrect    []int
	unattempted  []int
	minutes      []int
	reasons      []string
	languages    []string
	startedAts   []time.Time
	submittedAts []time.Time
}

// columnsOf splits batch into columns. A session seen twice keeps its last
// row so one INSERT never touches the same key twice.
func columnsOf(batch []*model.ExamResult) resultColumns {
	last := make(map[uuid.UUID]int, len(batch))
	for i, r := range batch {
		last[r.SessionID] = i
	}

	var c resultColumns
	for i, r := range batch {
		if last[r.SessionID] != i {
			continue
		}
		c.sessionIDs = append(c.sessionIDs, r.SessionID)
		c.testIDs = append(c.testIDs, r.TestID)
		c.scores = append(c.scores, r.Score)
		c.totals = append(c.totals, r.TotalMarks)
		c.correct = append(c.correct, r.Correct)
		c.incorrect = append(c.incorrect, r.Incorrect)
		c.unattempted = append(c.unattempted, r.Unattempted)
		c.minutes = append(c.minutes, r.TimeTakenMinutes)
		c.reasons = append(c.reasons, r.Reason)
		c.languages = append(c.languages, r.Language)
		c.startedAts = append(c.startedAts, r.StartedAt)
		c.submittedAts = append(c.submittedAts, r.SubmittedAt)
	}
	return c
}

// ----------------------------------------------------------------
// BULK PostgreSQL INSERT using UNNEST
// ----------------------------------------------------------------

func (w *ResultWorker) bulkInsert(ctx context.Context, batch []*model.ExamResult) error {
	c := columnsOf(batch)

	query := `
		INSERT INTO exam_results (
			session_id, test_id, score, total_marks, correct, incorrect, unattempted,
			time_taken_minutes, reason, language, started_at, submitted_at
		)
		SELECT * FROM UNNEST(
			$1::uuid[],
			$2::text[],
			$3::float8[],
			$4::float8[],
			$5::int[],
			$6::int[],
			$7::int[],
			$8::int[],
			$9::text[],
			$10::text[],
			$11::timestamptz[],
			$12::timestamptz[]
		)
		ON CONFLICT (session_id) DO NOTHING
	`

	_, err := w.pool.Exec(ctx, query,
		c.sessionIDs, c.testIDs, c.scores, c.totals, c.correct, c.incorrect, c.unattempted,
		c.minutes, c.reasons, c.languages, c.startedAts, c.submittedAts,
	)
	return err
}

// ----------------------------------------------------------------
// FALLBACK single insert
// ----------------------------------------------------------------

func (w *ResultWorker) persistSingle(ctx context.Context, r *model.ExamResult) error {
	_, err := w.pool.Exec(ctx,
		`INSERT INTO exam_results (
			session_id, test_id, score, total_marks, correct, incorrect, unattempted,
			time_taken_minutes, reason, language, started_at, submitted_at
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (session_id) DO NOTHING`,
		r.SessionID, r.TestID, r.Score, r.TotalMarks, r.Correct, r.Incorrect, r.Unattempted,
		r.TimeTakenMinutes, r.Reason, r.Language, r.StartedAt, r.SubmittedAt,
	)
	return err
}
