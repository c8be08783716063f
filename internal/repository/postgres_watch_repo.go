package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/bookman/internal/model"
)

// PostgresWatchRepo はPostgreSQLを使用したwatchチャネルリポジトリ。
// user_idがPRIMARY KEYのため、ユーザーごとにアクティブなチャネルは
// スキーマレベルで最大1つに制約される。
type PostgresWatchRepo struct {
	db *sql.DB
}

// NewPostgresWatchRepo はPostgresWatchRepoを生成する。
func NewPostgresWatchRepo(db *sql.DB) *PostgresWatchRepo {
	return &PostgresWatchRepo{db: db}
}

// Set はユーザーのwatchチャネルを無条件に上書きする。
// 旧チャネルIDは以後FindUserIDByChannelで解決できなくなる。
func (r *PostgresWatchRepo) Set(ctx context.Context, userID, channelID, resourceID string, expiry time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO watch_channels (user_id, channel_id, resource_id, expiry, created_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (user_id) DO UPDATE SET
		   channel_id  = EXCLUDED.channel_id,
		   resource_id = EXCLUDED.resource_id,
		   expiry      = EXCLUDED.expiry,
		   created_at  = now()`,
		userID, channelID, resourceID, expiry,
	)
	if err != nil {
		return fmt.Errorf("failed to set watch channel: %w", err)
	}
	return nil
}

// FindUserIDByChannel はチャネルIDからオーナーのユーザーIDを解決する。
// 見つからない場合は空文字列を返す。
func (r *PostgresWatchRepo) FindUserIDByChannel(ctx context.Context, channelID string) (string, error) {
	var userID string
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id FROM watch_channels WHERE channel_id = $1`,
		channelID,
	).Scan(&userID)

	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to find user by channel: %w", err)
	}

	return userID, nil
}

// FindByUserID は指定ユーザーのwatchチャネルを取得する。見つからない場合はnilを返す。
func (r *PostgresWatchRepo) FindByUserID(ctx context.Context, userID string) (*model.WatchChannel, error) {
	ch := &model.WatchChannel{}
	var expiry sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, channel_id, resource_id, expiry, created_at
		 FROM watch_channels WHERE user_id = $1`,
		userID,
	).Scan(&ch.UserID, &ch.ChannelID, &ch.ResourceID, &expiry, &ch.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find watch channel: %w", err)
	}

	if expiry.Valid {
		ch.Expiry = expiry.Time
	}

	return ch, nil
}

// ClearByChannel はチャネルIDでwatch登録を削除する。チャネル未知の場合は何もしない。
func (r *PostgresWatchRepo) ClearByChannel(ctx context.Context, channelID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM watch_channels WHERE channel_id = $1`,
		channelID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear watch channel: %w", err)
	}
	return nil
}

// ListExpiring は期限がdeadline以前のwatchチャネル一覧を返す。
func (r *PostgresWatchRepo) ListExpiring(ctx context.Context, deadline time.Time) ([]*model.WatchChannel, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, channel_id, resource_id, expiry, created_at
		 FROM watch_channels WHERE expiry IS NOT NULL AND expiry <= $1`,
		deadline,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring watch channels: %w", err)
	}
	defer rows.Close()

	var channels []*model.WatchChannel
	for rows.Next() {
		ch := &model.WatchChannel{}
		var expiry sql.NullTime
		if err := rows.Scan(&ch.UserID, &ch.ChannelID, &ch.ResourceID, &expiry, &ch.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan watch channel: %w", err)
		}
		if expiry.Valid {
			ch.Expiry = expiry.Time
		}
		channels = append(channels, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate watch channels: %w", err)
	}

	return channels, nil
}

// compile-time interface check
var _ WatchRepository = (*PostgresWatchRepo)(nil)
