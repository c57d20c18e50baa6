package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/langchou/tripdash/internal/cache"
)

// SessionRepository 会话缓存数据仓库
type SessionRepository struct {
	db *DB
}

// NewSessionRepository 创建会话缓存仓库
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Factory 返回基于 PostgreSQL 的 cache.StoreFactory
func (r *SessionRepository) Factory() cache.StoreFactory {
	return func(sessionID string) cache.Store {
		return r.Store(sessionID)
	}
}

// Store 返回单个会话的存储
func (r *SessionRepository) Store(sessionID string) *SessionStore {
	return &SessionStore{repo: r, sessionID: sessionID}
}

// PurgeExpired 删除 before 之前未更新的会话，返回删除的会话数
func (r *SessionRepository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM session_cache
		WHERE session_id IN (
			SELECT session_id FROM session_cache
			GROUP BY session_id
			HAVING MAX(updated_at) < $1
		)
	`
	tag, err := r.db.Pool.Exec(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("purge session cache: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SessionStore 实现 cache.Store
type SessionStore struct {
	repo      *SessionRepository
	sessionID string
}

// Get 读取单个键
func (s *SessionStore) Get(ctx context.Context, key string) ([]byte, error) {
	query := `SELECT value FROM session_cache WHERE session_id = $1 AND key = $2`
	var value []byte
	err := s.repo.db.Pool.QueryRow(ctx, query, s.sessionID, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, cache.ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("get session cache %s: %w", key, err)
	}
	return value, nil
}

// SetMany 批量 upsert
func (s *SessionStore) SetMany(ctx context.Context, entries map[string][]byte) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.repo.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := upsert(ctx, tx, s.sessionID, entries); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Replace 在同一事务内删除旧内容并写入新内容
func (s *SessionStore) Replace(ctx context.Context, entries map[string][]byte) error {
	tx, err := s.repo.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM session_cache WHERE session_id = $1`, s.sessionID); err != nil {
		return fmt.Errorf("delete session cache: %w", err)
	}
	if err := upsert(ctx, tx, s.sessionID, entries); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Clear 删除会话的全部键
func (s *SessionStore) Clear(ctx context.Context) error {
	if _, err := s.repo.db.Pool.Exec(ctx, `DELETE FROM session_cache WHERE session_id = $1`, s.sessionID); err != nil {
		return fmt.Errorf("clear session cache: %w", err)
	}
	return nil
}

func upsert(ctx context.Context, tx pgx.Tx, sessionID string, entries map[string][]byte) error {
	query := `
		INSERT INTO session_cache (session_id, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (session_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`
	batch := &pgx.Batch{}
	for key, value := range entries {
		batch.Queue(query, sessionID, key, value)
	}
	results := tx.SendBatch(ctx, batch)
	for range entries {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("upsert session cache: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("upsert session cache: %w", err)
	}
	return nil
}
