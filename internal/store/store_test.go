package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/dimajoyti/aave-sentinel/internal/domain"
	"github.com/dimajoyti/aave-sentinel/pkg/logger"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	db := sqlx.NewDb(sqlDB, "postgres")
	return &Store{db: db, log: logger.New("test")}, mock
}

func TestInsertAttemptSucceeds(t *testing.T) {
	s, mock := newTestStore(t)
	defer s.db.Close()

	now := time.Now()
	mock.ExpectQuery("INSERT INTO liquidation_attempts").
		WithArgs(int64(1), "0xabc", "sent", "", nil, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(42), now))

	row := domain.AttemptRow{
		ChainID:  1,
		Borrower: "0xabc",
		Status:   domain.StatusSent,
		Details:  domain.AttemptDetails{Kind: "execution"},
	}
	id, err := s.InsertAttempt(context.Background(), row)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 42 {
		t.Fatalf("expected id=42, got %d", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertAttemptRetriesOnSerializationFailure(t *testing.T) {
	s, mock := newTestStore(t)
	defer s.db.Close()

	serializationErr := &pq.Error{Code: "40001"}
	mock.ExpectQuery("INSERT INTO liquidation_attempts").
		WillReturnError(serializationErr)
	mock.ExpectQuery("INSERT INTO liquidation_attempts").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), time.Now()))

	row := domain.AttemptRow{ChainID: 10, Borrower: "0xdef", Status: domain.StatusError}
	id, err := s.InsertAttempt(context.Background(), row)
	if err != nil {
		t.Fatalf("expected retry to recover, got error: %v", err)
	}
	if id != 7 {
		t.Fatalf("expected id=7, got %d", id)
	}
}

func TestInsertAttemptFailsOnNonRetryableError(t *testing.T) {
	s, mock := newTestStore(t)
	defer s.db.Close()

	mock.ExpectQuery("INSERT INTO liquidation_attempts").
		WillReturnError(errors.New("syntax error"))

	row := domain.AttemptRow{ChainID: 1, Borrower: "0xabc", Status: domain.StatusError}
	if _, err := s.InsertAttempt(context.Background(), row); err == nil {
		t.Fatalf("expected a non-retryable error to propagate immediately")
	}
}

func TestRecentAttemptsParsesDetails(t *testing.T) {
	s, mock := newTestStore(t)
	defer s.db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "chain_id", "borrower", "status", "reason", "tx_hash", "details", "created_at"}).
		AddRow(int64(1), int64(1), "0xabc", "success", "", "0xhash", []byte(`{"kind":"execution"}`), now)
	mock.ExpectQuery("SELECT (.+) FROM liquidation_attempts").
		WithArgs(int64(1), sqlmock.AnyArg()).
		WillReturnRows(rows)

	got, err := s.RecentAttempts(context.Background(), 1, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 row, got %d", len(got))
	}
	if got[0].Details.Kind != "execution" {
		t.Fatalf("expected parsed details kind=execution, got %q", got[0].Details.Kind)
	}
}

func TestInsertFabricAttemptSucceeds(t *testing.T) {
	s, mock := newTestStore(t)
	defer s.db.Close()

	now := time.Now()
	mock.ExpectQuery("INSERT INTO laf_attempts").
		WithArgs(int64(1), "WETH/USDC", "single-hop", "sent", "0xhash", 12.5, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(99), now))

	row := domain.FabricAttemptRow{
		ChainID: 1,
		PairID:  "WETH/USDC",
		Source:  domain.EdgeSingleHop,
		Status:  domain.FabricStatusSent,
		TxHash:  "0xhash",
		NetUSD:  12.5,
	}
	id, err := s.InsertFabricAttempt(context.Background(), row)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 99 {
		t.Fatalf("expected id=99, got %d", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertFabricAttemptRetriesOnSerializationFailure(t *testing.T) {
	s, mock := newTestStore(t)
	defer s.db.Close()

	serializationErr := &pq.Error{Code: "40001"}
	mock.ExpectQuery("INSERT INTO laf_attempts").
		WillReturnError(serializationErr)
	mock.ExpectQuery("INSERT INTO laf_attempts").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(3), time.Now()))

	row := domain.FabricAttemptRow{ChainID: 1, PairID: "WETH/USDC", Source: domain.EdgeSingleHop, Status: domain.FabricStatusError}
	id, err := s.InsertFabricAttempt(context.Background(), row)
	if err != nil {
		t.Fatalf("expected retry to recover, got error: %v", err)
	}
	if id != 3 {
		t.Fatalf("expected id=3, got %d", id)
	}
}

func TestInsertFabricAttemptFailsOnNonRetryableError(t *testing.T) {
	s, mock := newTestStore(t)
	defer s.db.Close()

	mock.ExpectQuery("INSERT INTO laf_attempts").
		WillReturnError(errors.New("syntax error"))

	row := domain.FabricAttemptRow{ChainID: 1, PairID: "WETH/USDC", Source: domain.EdgeSingleHop, Status: domain.FabricStatusError}
	if _, err := s.InsertFabricAttempt(context.Background(), row); err == nil {
		t.Fatalf("expected a non-retryable error to propagate immediately")
	}
}

func TestRecentFabricAttemptsParsesMetadata(t *testing.T) {
	s, mock := newTestStore(t)
	defer s.db.Close()

	now := time.Now()
	netUSD := 4.25
	rows := sqlmock.NewRows([]string{"id", "chain_id", "pair_id", "source", "status", "tx_hash", "net_usd", "metadata", "created_at"}).
		AddRow(int64(1), int64(1), "WETH/USDC", "single-hop", "success", "0xhash", netUSD, []byte(`{"basePriceUsd":3000}`), now)
	mock.ExpectQuery("SELECT (.+) FROM laf_attempts").
		WithArgs(int64(1), "WETH/USDC", sqlmock.AnyArg()).
		WillReturnRows(rows)

	got, err := s.RecentFabricAttempts(context.Background(), 1, "WETH/USDC", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 row, got %d", len(got))
	}
	if got[0].Metadata["basePriceUsd"] != float64(3000) {
		t.Fatalf("expected parsed metadata basePriceUsd=3000, got %v", got[0].Metadata["basePriceUsd"])
	}
	if got[0].NetUSD != netUSD {
		t.Fatalf("expected net USD %v, got %v", netUSD, got[0].NetUSD)
	}
}
