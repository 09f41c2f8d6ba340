package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/qb411/cloud-health-map/internal/models"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *EventRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewEventRepository(db, zap.NewNop())
	return db, mock, repo
}

func TestUpsert_Success(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	event := models.HealthEvent{
		GUID:        "evt-1",
		Title:       "degraded performance in us-east-1",
		Description: "degraded",
		PublishedAt: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
	}

	mock.ExpectExec(`INSERT INTO health_events`).
		WithArgs(event.GUID, event.Title, event.Description, event.PublishedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), event)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert_DatabaseError(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO health_events`).
		WillReturnError(errors.New("connection refused"))

	err := repo.Upsert(context.Background(), models.HealthEvent{GUID: "evt-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "evt-1")
}

func TestQueryAll_DatabaseError(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT guid, title, description, published_at`).
		WillReturnError(errors.New("connection refused"))

	_, err := repo.QueryAll(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestQueryAll_Success(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	newer := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	older := newer.Add(-2 * time.Hour)

	rows := sqlmock.NewRows([]string{"guid", "title", "description", "published_at"}).
		AddRow("evt-2", "outage in eu-west-1", "outage", newer).
		AddRow("evt-1", "degraded in us-east-1", "degraded", older)

	mock.ExpectQuery(`SELECT guid, title, description, published_at`).
		WillReturnRows(rows)

	events, err := repo.QueryAll(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "evt-2", events[0].GUID)
	assert.Equal(t, "evt-1", events[1].GUID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryAll_EmptyResult(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"guid", "title", "description", "published_at"})
	mock.ExpectQuery(`SELECT guid, title, description, published_at`).
		WillReturnRows(rows)

	events, err := repo.QueryAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestDeleteOlderThan(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	cutoff := time.Date(2026, 8, 17, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(`DELETE FROM health_events`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.DeleteOlderThan(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteOlderThan_RowsAffectedError(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	cutoff := time.Date(2026, 8, 17, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(`DELETE FROM health_events`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewErrorResult(errors.New("driver does not report rows")))

	n, err := repo.DeleteOlderThan(context.Background(), cutoff)
	require.Error(t, err)
	assert.Zero(t, n)
	assert.Contains(t, err.Error(), "count expired events")
}
