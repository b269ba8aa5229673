package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/pulseplan/calsync/internal/model"
)

func TestEventRepo_UpsertBatch_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewEventRepo(db)

	calID := uuid.Must(uuid.NewV4())
	start := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`(?s)INSERT INTO calendar_events.+ON CONFLICT \(calendar_id, external_id\) DO UPDATE`).
		WithArgs(pgxmock.AnyArg(), calID, "ev-1", "Standup", start, start.Add(15*time.Minute),
			false, "", "confirmed", `"e1"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`(?s)INSERT INTO calendar_events.+ON CONFLICT \(calendar_id, external_id\) DO UPDATE`).
		WithArgs(pgxmock.AnyArg(), calID, "ev-2", "Offsite", start, start.Add(time.Hour),
			true, "RRULE:FREQ=YEARLY", "tentative", `"e2"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := r.UpsertBatch(context.Background(), []model.EventUpsert{
		{CalendarID: calID, ExternalID: "ev-1", Title: "Standup", StartsAt: start,
			EndsAt: start.Add(15 * time.Minute), Status: "confirmed", ETag: `"e1"`},
		{CalendarID: calID, ExternalID: "ev-2", Title: "Offsite", StartsAt: start,
			EndsAt: start.Add(time.Hour), AllDay: true, Recurrence: "RRULE:FREQ=YEARLY",
			Status: "tentative", ETag: `"e2"`},
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepo_UpsertBatch_Empty(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewEventRepo(db)

	n, err := r.UpsertBatch(context.Background(), nil)
	require.NoError(t, err)
	require.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepo_UpsertBatch_RollsBackOnError(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewEventRepo(db)

	calID := uuid.Must(uuid.NewV4())
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO calendar_events`).
		WithArgs(pgxmock.AnyArg(), calID, "ev-1", "", time.Time{}, time.Time{}, false, "", "", "").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := r.UpsertBatch(context.Background(), []model.EventUpsert{
		{CalendarID: calID, ExternalID: "ev-1"},
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepo_DeleteByExternalIDs_ScopedToUser(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewEventRepo(db)

	userID := uuid.Must(uuid.NewV4())
	mock.ExpectExec(`(?s)DELETE FROM calendar_events e\s+USING calendars c, calendar_accounts a.+a\.user_id = \$1`).
		WithArgs(userID, []string{"ext-9", "ext-10"}).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	n, err := r.DeleteByExternalIDs(context.Background(), userID, []string{"ext-9", "ext-10"})
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}

func TestEventRepo_DeleteByExternalIDs_EmptySetNoQuery(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewEventRepo(db)

	n, err := r.DeleteByExternalIDs(context.Background(), uuid.Must(uuid.NewV4()), nil)
	require.NoError(t, err)
	require.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepo_ListExternalIDs(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewEventRepo(db)

	calID := uuid.Must(uuid.NewV4())
	mock.ExpectQuery(`SELECT external_id FROM calendar_events WHERE calendar_id=\$1`).
		WithArgs(calID).
		WillReturnRows(pgxmock.NewRows([]string{"external_id"}).AddRow("a").AddRow("b"))

	ids, err := r.ListExternalIDs(context.Background(), calID)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, ids)
}
