package db

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func mockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	s := newStoreWithDB(sqlx.NewDb(mockDB, "sqlite3"), zap.NewNop())
	return s, mock
}

func sampleRecord() *ReportRecord {
	return &ReportRecord{
		SessionID:      "sess-1",
		Topic:          "offshore wind expansion",
		Profile:        "detailed",
		Body:           "## Findings\n\nCapacity doubled.",
		CitationsBlock: "---\n\n## Sources and References\n\n[1] Grid Report — https://example.com/grid",
		WordCount:      4,
		UniqueSources:  1,
		Warnings:       "[]",
		CreatedAt:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestInsertReport(t *testing.T) {
	s, mock := mockStore(t)
	rec := sampleRecord()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reports")).
		WithArgs(rec.SessionID, rec.Topic, rec.Profile, rec.Body, rec.CitationsBlock,
			rec.WordCount, rec.UniqueSources, rec.Warnings, rec.CreatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, s.insert(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestArchiveFallsBackToSyncWhenQueueFull(t *testing.T) {
	s, mock := mockStore(t)
	s.writeQueue = make(chan *ReportRecord) // no workers, unbuffered

	rec := sampleRecord()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reports")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, s.Archive(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestArchiveSetsCreatedAt(t *testing.T) {
	s, mock := mockStore(t)
	s.writeQueue = make(chan *ReportRecord)

	rec := sampleRecord()
	rec.CreatedAt = time.Time{}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reports")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, s.Archive(context.Background(), rec))
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestGetBySession(t *testing.T) {
	s, mock := mockStore(t)
	rec := sampleRecord()

	rows := sqlmock.NewRows([]string{
		"id", "session_id", "topic", "profile", "body",
		"citations_block", "word_count", "unique_sources", "warnings", "created_at",
	}).AddRow(7, rec.SessionID, rec.Topic, rec.Profile, rec.Body,
		rec.CitationsBlock, rec.WordCount, rec.UniqueSources, rec.Warnings, rec.CreatedAt)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM reports WHERE session_id = ?")).
		WithArgs("sess-1").
		WillReturnRows(rows)

	got, err := s.GetBySession(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.ID)
	assert.Equal(t, "offshore wind expansion", got.Topic)
	assert.Equal(t, 1, got.UniqueSources)
}

func TestGetBySessionNotFound(t *testing.T) {
	s, mock := mockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM reports WHERE session_id = ?")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetBySession(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrReportNotFound)
}

func TestListRecentClampsLimit(t *testing.T) {
	s, mock := mockStore(t)

	rows := sqlmock.NewRows([]string{
		"id", "session_id", "topic", "profile", "body",
		"citations_block", "word_count", "unique_sources", "warnings", "created_at",
	})
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM reports ORDER BY created_at DESC LIMIT ?")).
		WithArgs(20).
		WillReturnRows(rows)

	recs, err := s.ListRecent(context.Background(), -5)
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarshalWarnings(t *testing.T) {
	assert.Equal(t, "[]", MarshalWarnings([]string{}))
	assert.Equal(t, `["too short"]`, MarshalWarnings([]string{"too short"}))
	assert.Equal(t, "[]", MarshalWarnings(make(chan int))) // unmarshalable falls back
}
