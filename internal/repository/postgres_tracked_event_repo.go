package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// PostgresTrackedEventRepo はPostgreSQLを使用した追跡イベントリポジトリ。
type PostgresTrackedEventRepo struct {
	db *sql.DB
}

// NewPostgresTrackedEventRepo はPostgresTrackedEventRepoを生成する。
func NewPostgresTrackedEventRepo(db *sql.DB) *PostgresTrackedEventRepo {
	return &PostgresTrackedEventRepo{db: db}
}

// Upsert は追跡イベントを登録する。(user_id, event_id)が既存の場合は
// ICSコンテンツのみを上書きし、重複レコードを作らない。
func (r *PostgresTrackedEventRepo) Upsert(ctx context.Context, userID, eventID, icsContent string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tracked_events (user_id, event_id, ics_content, created_at, updated_at)
		 VALUES ($1, $2, $3, now(), now())
		 ON CONFLICT (user_id, event_id) DO UPDATE SET
		   ics_content = EXCLUDED.ics_content,
		   updated_at  = now()`,
		userID, eventID, icsContent,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert tracked event: %w", err)
	}
	return nil
}

// FindContent は追跡イベントのICSコンテンツを取得する。
// 追跡対象外の場合は空文字列とfalseを返す。副作用なし。
func (r *PostgresTrackedEventRepo) FindContent(ctx context.Context, userID, eventID string) (string, bool, error) {
	var content string
	err := r.db.QueryRowContext(ctx,
		`SELECT ics_content FROM tracked_events WHERE user_id = $1 AND event_id = $2`,
		userID, eventID,
	).Scan(&content)

	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to find tracked event content: %w", err)
	}

	return content, true, nil
}

// FilterTracked はcandidateIDsのうちユーザーの追跡対象に含まれるものを、
// 入力順を保ったまま返す。状態を変更しない。
// 候補集合に対する1回のインデックス付きクエリで済ませ、結果は
// 入力順の再走査で並べ直す。
func (r *PostgresTrackedEventRepo) FilterTracked(ctx context.Context, userID string, candidateIDs []string) ([]string, error) {
	if len(candidateIDs) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT event_id FROM tracked_events WHERE user_id = $1 AND event_id = ANY($2)`,
		userID, pq.Array(candidateIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to filter tracked events: %w", err)
	}
	defer rows.Close()

	tracked := make(map[string]struct{}, len(candidateIDs))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tracked event ID: %w", err)
		}
		tracked[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tracked events: %w", err)
	}

	return orderByCandidates(candidateIDs, tracked), nil
}

// orderByCandidates は追跡集合に含まれる候補を、候補の入力順のまま返す。
// 結果の順序はDBの返却順には依存しない。
func orderByCandidates(candidateIDs []string, tracked map[string]struct{}) []string {
	var filtered []string
	for _, id := range candidateIDs {
		if _, ok := tracked[id]; ok {
			filtered = append(filtered, id)
		}
	}
	return filtered
}

// compile-time interface check
var _ TrackedEventRepository = (*PostgresTrackedEventRepo)(nil)
