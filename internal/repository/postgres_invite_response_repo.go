package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/bookman/internal/model"
)

// PostgresInviteResponseRepo はPostgreSQLを使用した招待回答リポジトリ。
type PostgresInviteResponseRepo struct {
	db *sql.DB
}

// NewPostgresInviteResponseRepo はPostgresInviteResponseRepoを生成する。
func NewPostgresInviteResponseRepo(db *sql.DB) *PostgresInviteResponseRepo {
	return &PostgresInviteResponseRepo{db: db}
}

// Record は回答を保存する。(event_id, attendee_email)が既存の場合は上書きする。
func (r *PostgresInviteResponseRepo) Record(ctx context.Context, resp *model.InviteResponse) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO invite_responses (event_id, attendee_email, response, responded_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (event_id, attendee_email) DO UPDATE SET
		   response     = EXCLUDED.response,
		   responded_at = EXCLUDED.responded_at`,
		resp.EventID, resp.AttendeeEmail, resp.Response, resp.RespondedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record invite response: %w", err)
	}
	return nil
}

// ListByEvent は指定イベントへの回答一覧を返す。
func (r *PostgresInviteResponseRepo) ListByEvent(ctx context.Context, eventID string) ([]*model.InviteResponse, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT event_id, attendee_email, response, responded_at
		 FROM invite_responses WHERE event_id = $1 ORDER BY responded_at`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list invite responses: %w", err)
	}
	defer rows.Close()

	var responses []*model.InviteResponse
	for rows.Next() {
		resp := &model.InviteResponse{}
		if err := rows.Scan(&resp.EventID, &resp.AttendeeEmail, &resp.Response, &resp.RespondedAt); err != nil {
			return nil, fmt.Errorf("failed to scan invite response: %w", err)
		}
		responses = append(responses, resp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invite responses: %w", err)
	}

	return responses, nil
}

// DeleteOlderThan は指定時刻より古い回答を削除し、削除件数を返す。
func (r *PostgresInviteResponseRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM invite_responses WHERE responded_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old invite responses: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

// compile-time interface check
var _ InviteResponseRepository = (*PostgresInviteResponseRepo)(nil)
