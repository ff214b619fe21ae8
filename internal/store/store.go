// Package store implements spec.md §6's Postgres attempt store: the
// `liquidation_attempts` table written by every scored/executed candidate
// and read back by the analytics loop (component J). Modeled on the
// teacher's accounts-service/internal/repository/postgres package —
// sqlx.DB + lib/pq, one method per query, retryable errors classified and
// retried per spec.md §5.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/dimajoyti/aave-sentinel/internal/domain"
	"github.com/dimajoyti/aave-sentinel/pkg/logger"
)

// Store is the liquidation_attempts repository.
type Store struct {
	db  *sqlx.DB
	log *logger.Logger
}

// Open connects to Postgres per cfg, configuring the connection pool the
// way the teacher's db.Database does.
func Open(cfg Config, log *logger.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Store{db: db, log: log.Named("store")}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks connectivity, used by the /ready handler.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type attemptRecord struct {
	ID        int64     `db:"id"`
	ChainID   int64     `db:"chain_id"`
	Borrower  string    `db:"borrower"`
	Status    string    `db:"status"`
	Reason    string    `db:"reason"`
	TxHash    string    `db:"tx_hash"`
	Details   []byte    `db:"details"`
	CreatedAt time.Time `db:"created_at"`
}

// InsertAttempt persists one AttemptRow, retrying per spec.md §5's DB
// timeout policy on connection/serialization-class Postgres errors. A
// retry that succeeds after a prior failure logs "recovered", matching
// spec.md §7's DatabaseError wording.
func (s *Store) InsertAttempt(ctx context.Context, row domain.AttemptRow) (int64, error) {
	details, err := json.Marshal(row.Details)
	if err != nil {
		return 0, fmt.Errorf("store: marshal attempt details: %w", err)
	}

	const query = `
		INSERT INTO liquidation_attempts (chain_id, borrower, status, reason, tx_hash, details)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	var id int64
	var createdAt time.Time
	failedOnce := false
	err = withRetry(ctx, func() error {
		qctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		rowErr := s.db.QueryRowxContext(qctx, query, row.ChainID, row.Borrower, string(row.Status), row.Reason, nullIfEmpty(row.TxHash), details).Scan(&id, &createdAt)
		if rowErr != nil {
			failedOnce = true
			return rowErr
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if failedOnce {
		s.log.Info("attempt insert recovered after retry", "chainId", row.ChainID, "borrower", row.Borrower)
	}
	return id, nil
}

// RecentAttempts returns every attempt row for chainID created at or after
// since, ordered oldest-first, for the analytics loop's per-poll bucket
// scan.
func (s *Store) RecentAttempts(ctx context.Context, chainID uint64, since time.Time) ([]domain.AttemptRow, error) {
	const query = `
		SELECT id, chain_id, borrower, status, reason, COALESCE(tx_hash, '') AS tx_hash, details, created_at
		FROM liquidation_attempts
		WHERE chain_id = $1 AND created_at >= $2
		ORDER BY created_at ASC
	`

	var records []attemptRecord
	err := withRetry(ctx, func() error {
		qctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		return s.db.SelectContext(qctx, &records, query, int64(chainID), since)
	})
	if err != nil {
		return nil, err
	}

	rows := make([]domain.AttemptRow, 0, len(records))
	for _, r := range records {
		var details domain.AttemptDetails
		if len(r.Details) > 0 {
			if jsonErr := json.Unmarshal(r.Details, &details); jsonErr != nil {
				s.log.Warn("skipping attempt row with unparseable details", "id", r.ID, "error", jsonErr)
				continue
			}
		}
		rows = append(rows, domain.AttemptRow{
			ID:        r.ID,
			ChainID:   uint64(r.ChainID),
			Borrower:  r.Borrower,
			Status:    domain.AttemptStatus(r.Status),
			Reason:    r.Reason,
			TxHash:    r.TxHash,
			Details:   details,
			CreatedAt: r.CreatedAt,
		})
	}
	return rows, nil
}

type fabricAttemptRecord struct {
	ID        int64     `db:"id"`
	ChainID   int64     `db:"chain_id"`
	PairID    string    `db:"pair_id"`
	Source    string    `db:"source"`
	Status    string    `db:"status"`
	TxHash    string    `db:"tx_hash"`
	NetUSD    *float64  `db:"net_usd"`
	Metadata  []byte    `db:"metadata"`
	CreatedAt time.Time `db:"created_at"`
}

// InsertFabricAttempt persists one FabricAttemptRow to `laf_attempts`, the
// arbitrage fabric's parallel to InsertAttempt.
func (s *Store) InsertFabricAttempt(ctx context.Context, row domain.FabricAttemptRow) (int64, error) {
	metadata, err := json.Marshal(row.Metadata)
	if err != nil {
		return 0, fmt.Errorf("store: marshal fabric attempt metadata: %w", err)
	}

	const query = `
		INSERT INTO laf_attempts (chain_id, pair_id, source, status, tx_hash, net_usd, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	var id int64
	var createdAt time.Time
	failedOnce := false
	err = withRetry(ctx, func() error {
		qctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		rowErr := s.db.QueryRowxContext(qctx, query, int64(row.ChainID), row.PairID, string(row.Source), string(row.Status), nullIfEmpty(row.TxHash), nullIfZero(row.NetUSD), metadata).Scan(&id, &createdAt)
		if rowErr != nil {
			failedOnce = true
			return rowErr
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if failedOnce {
		s.log.Info("fabric attempt insert recovered after retry", "chainId", row.ChainID, "pairId", row.PairID)
	}
	return id, nil
}

// RecentFabricAttempts returns every laf_attempts row for (chainID, pairID)
// created at or after since, ordered oldest-first.
func (s *Store) RecentFabricAttempts(ctx context.Context, chainID uint64, pairID string, since time.Time) ([]domain.FabricAttemptRow, error) {
	const query = `
		SELECT id, chain_id, pair_id, source, status, COALESCE(tx_hash, '') AS tx_hash, net_usd, metadata, created_at
		FROM laf_attempts
		WHERE chain_id = $1 AND pair_id = $2 AND created_at >= $3
		ORDER BY created_at ASC
	`

	var records []fabricAttemptRecord
	err := withRetry(ctx, func() error {
		qctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		return s.db.SelectContext(qctx, &records, query, int64(chainID), pairID, since)
	})
	if err != nil {
		return nil, err
	}

	rows := make([]domain.FabricAttemptRow, 0, len(records))
	for _, r := range records {
		var metadata map[string]interface{}
		if len(r.Metadata) > 0 {
			if jsonErr := json.Unmarshal(r.Metadata, &metadata); jsonErr != nil {
				s.log.Warn("skipping fabric attempt row with unparseable metadata", "id", r.ID, "error", jsonErr)
				continue
			}
		}
		netUSD := 0.0
		if r.NetUSD != nil {
			netUSD = *r.NetUSD
		}
		rows = append(rows, domain.FabricAttemptRow{
			ID:        r.ID,
			ChainID:   uint64(r.ChainID),
			PairID:    r.PairID,
			Source:    domain.EdgeSource(r.Source),
			Status:    domain.FabricAttemptStatus(r.Status),
			TxHash:    r.TxHash,
			NetUSD:    netUSD,
			Metadata:  metadata,
			CreatedAt: r.CreatedAt,
		})
	}
	return rows, nil
}

func nullIfZero(f float64) interface{} {
	if f == 0 {
		return nil
	}
	return f
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
