// Package worker consumes flush events published by the HTTP layer and
// applies them to the ledger. The HTTP path acknowledges with 202 before this
// code runs; delivery is at-least-once and the processed_events table keeps
// redelivered events from double-applying.
package worker

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/learning-platform/services/progress/internal/outline"
	"github.com/example/learning-platform/services/progress/internal/store"
)

const (
	flushSubject = "progress.flush"
	flushDurable = "progress_flush"
)

// FlushEvent is the payload published by the flush handler.
type FlushEvent struct {
	EventID           string `json:"event_id"`
	UserID            string `json:"user_id"`
	CourseID          string `json:"course_id"`
	LessonID          string `json:"lesson_id"`
	Section           int    `json:"section"`
	Lesson            int    `json:"lesson"`
	PositionSeconds   int    `json:"position_seconds"`
	DeltaWatchSeconds int    `json:"delta_watch_seconds"`
	ClientTsMs        int64  `json:"client_ts_ms"`
	CreatedAt         string `json:"created_at"`
}

func (ev FlushEvent) flushInput() store.FlushInput {
	return store.FlushInput{
		UserID: ev.UserID,
		Ref: outline.Ref{
			CourseID: ev.CourseID,
			LessonID: ev.LessonID,
			Coord:    outline.Coordinate{Section: ev.Section, Lesson: ev.Lesson},
		},
		PositionSeconds:   ev.PositionSeconds,
		DeltaWatchSeconds: ev.DeltaWatchSeconds,
		ClientTsMs:        ev.ClientTsMs,
	}
}

// StartFlushConsumer pull-subscribes to progress.flush and applies batches of
// flush events inside one transaction each. A batch fails as a unit; NAKed
// messages come back on the next fetch.
func StartFlushConsumer(ctx context.Context, nc *nats.Conn, pool *pgxpool.Pool, log *zap.Logger) {
	js, err := nc.JetStream()
	if err != nil {
		log.Error("flush consumer: jetstream init failed", zap.Error(err))
		return
	}
	sub, err := js.PullSubscribe(flushSubject, flushDurable)
	if err != nil {
		log.Error("flush consumer: subscribe failed", zap.Error(err))
		return
	}

	go func() {
		batchSize := envInt("WORKER_BATCH_SIZE", 100)
		maxWait := time.Duration(envInt("WORKER_BATCH_INTERVAL_MS", 2000)) * time.Millisecond
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			msgs, err := sub.Fetch(batchSize, nats.MaxWait(maxWait))
			if err != nil {
				if err == nats.ErrTimeout {
					continue
				}
				log.Warn("flush consumer: fetch failed", zap.Error(err))
				time.Sleep(time.Second)
				continue
			}
			if len(msgs) == 0 {
				continue
			}

			if err := applyBatch(ctx, pool, msgs); err != nil {
				log.Warn("flush consumer: batch failed", zap.Int("size", len(msgs)), zap.Error(err))
				nakAll(msgs, log)
				continue
			}
			for _, m := range msgs {
				if err := m.Ack(); err != nil {
					log.Warn("flush consumer: ack failed", zap.Error(err))
				}
			}
		}
	}()
}

func applyBatch(ctx context.Context, pool *pgxpool.Pool, msgs []*nats.Msg) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, m := range msgs {
		var ev FlushEvent
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			return err
		}

		ct, err := tx.Exec(ctx,
			`INSERT INTO processed_events (event_id, subject, created_at, payload)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (event_id) DO NOTHING`,
			ev.EventID, flushSubject, ev.CreatedAt, m.Data)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			// Redelivery of an already-applied event.
			continue
		}

		if err := store.ApplyFlush(ctx, tx, ev.flushInput()); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func nakAll(msgs []*nats.Msg, log *zap.Logger) {
	for _, m := range msgs {
		if err := m.Nak(); err != nil {
			log.Warn("flush consumer: nak failed", zap.Error(err))
		}
	}
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
