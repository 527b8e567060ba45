package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cur1osus/manager-for-userbot/types"
)

const jobColumns = `id, COALESCE(bot_id, 0) AS bot_id, task, task_metadata, answer, claimed_by, claimed_at, created_at`

func joinKinds(kinds []types.TaskKind) string {
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, string(k))
	}
	return strings.Join(parts, ",")
}

// ReplacePending removes earlier jobs of the same bot and kind and inserts a
// fresh pending one in a single transaction.
func (s *PostgresStore) ReplacePending(ctx context.Context, botID int64, kind types.TaskKind, metadata []byte) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE bot_id = $1 AND task = $2`, botID, kind); err != nil {
		return 0, fmt.Errorf("delete previous %s jobs: %w", kind, err)
	}
	var id int64
	if err := tx.QueryRowxContext(ctx,
		`INSERT INTO jobs (bot_id, task, task_metadata) VALUES ($1, $2, $3) RETURNING id`,
		botID, kind, metadata).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert %s job: %w", kind, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *PostgresStore) InsertJob(ctx context.Context, botID int64, kind types.TaskKind, metadata []byte) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	var id int64
	err := s.db.QueryRowxContext(ctx,
		`INSERT INTO jobs (bot_id, task, task_metadata) VALUES ($1, $2, $3) RETURNING id`,
		botID, kind, metadata).Scan(&id)
	return id, err
}

// LatestJob returns the most recently inserted job of the kind, or nil.
func (s *PostgresStore) LatestJob(ctx context.Context, botID int64, kind types.TaskKind) (*types.Job, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	var j types.Job
	err := s.db.GetContext(ctx, &j, `
SELECT `+jobColumns+`
FROM jobs
WHERE bot_id = $1 AND task = $2
ORDER BY id DESC
LIMIT 1`, botID, kind)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// ClaimNextJob marks the oldest unanswered job of the given kinds as claimed
// by claimer. Claims older than staleAfter are taken over. Returns nil when
// nothing is claimable.
func (s *PostgresStore) ClaimNextJob(ctx context.Context, botID int64, kinds []types.TaskKind, claimer string, staleAfter time.Duration) (*types.Job, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	var j types.Job
	err := s.db.GetContext(ctx, &j, `
UPDATE jobs SET claimed_by = $3, claimed_at = NOW()
WHERE id = (
    SELECT id FROM jobs
    WHERE bot_id = $1
      AND task = ANY(string_to_array($2, ','))
      AND answer IS NULL
      AND (claimed_at IS NULL OR claimed_at < NOW() - make_interval(secs => $4))
    ORDER BY id
    LIMIT 1
    FOR UPDATE SKIP LOCKED
)
RETURNING `+jobColumns, botID, joinKinds(kinds), claimer, staleAfter.Seconds())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// AnswerJob writes the answer of a still pending job. It reports false when
// the job was already answered or no longer exists.
func (s *PostgresStore) AnswerJob(ctx context.Context, id int64, answer []byte) (bool, error) {
	if answer == nil {
		return false, fmt.Errorf("answer job %d: nil answer", id)
	}
	err := s.execOne(ctx, `UPDATE jobs SET answer = $2 WHERE id = $1 AND answer IS NULL`, id, answer)
	if errors.Is(err, types.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

type jobRecordRow struct {
	types.Job
	BotPhone        sql.NullString `db:"bot_phone"`
	BotName         sql.NullString `db:"bot_name"`
	BotManagerID    sql.NullInt64  `db:"bot_manager_id"`
	BotIsStarted    sql.NullBool   `db:"bot_is_started"`
	ManagerTelegram sql.NullInt64  `db:"manager_user_id"`
}

func (r jobRecordRow) record() types.JobRecord {
	rec := types.JobRecord{Job: r.Job}
	if r.BotPhone.Valid {
		rec.Bot = &types.Bot{
			ID:        r.Job.BotID,
			ManagerID: r.BotManagerID.Int64,
			Phone:     r.BotPhone.String,
			IsStarted: r.BotIsStarted.Bool,
		}
		if r.BotName.Valid {
			name := r.BotName.String
			rec.Bot.Name = &name
		}
	}
	if r.ManagerTelegram.Valid {
		rec.Manager = &types.Manager{ID: r.BotManagerID.Int64, TelegramID: r.ManagerTelegram.Int64}
	}
	return rec
}

// PendingControlJobs lists unanswered jobs reported by workers, oldest first.
func (s *PostgresStore) PendingControlJobs(ctx context.Context, limit int) ([]types.JobRecord, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	var rows []jobRecordRow
	err := s.db.SelectContext(ctx, &rows, `
SELECT j.id, COALESCE(j.bot_id, 0) AS bot_id, j.task, j.task_metadata, j.answer,
       j.claimed_by, j.claimed_at, j.created_at,
       b.phone AS bot_phone, b.name AS bot_name, b.manager_id AS bot_manager_id,
       b.is_started AS bot_is_started, m.user_id AS manager_user_id
FROM jobs j
LEFT JOIN bots b ON b.id = j.bot_id
LEFT JOIN managers m ON m.id = b.manager_id
WHERE j.answer IS NULL AND j.task = ANY(string_to_array($1, ','))
ORDER BY j.id
LIMIT $2`, joinKinds(types.ControlTaskKinds()), limit)
	if err != nil {
		return nil, err
	}
	out := make([]types.JobRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.record())
	}
	return out, nil
}

func (s *PostgresStore) DeleteJobs(ctx context.Context, botID int64) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE bot_id = $1`, botID)
	return err
}

func (s *PostgresStore) DeleteJobsByKind(ctx context.Context, botID int64, kind types.TaskKind) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE bot_id = $1 AND task = $2`, botID, kind)
	return err
}
