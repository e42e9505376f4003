package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"adchat/internal/domain/entity"
	apperrors "adchat/pkg/errors"
)

func newTicketDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, MigrateTickets(db))
	return db
}

func TestGormTicketRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewGormTicketRepository(newTicketDB(t))
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	ticket := &entity.Ticket{
		ID:        "tkt_1",
		UserID:    "u1",
		Subject:   "Refund",
		Message:   "Please refund",
		QueryType: "billing",
		Status:    entity.TicketStatusOpen,
		Priority:  entity.TicketPriorityHigh,
		ChatID:    "org_1",
		CreatedAt: created,
		UpdatedAt: created,
		Tags:      []string{"refund", "card"},
		Metadata:  map[string]string{"adId": "ad-9"},
	}
	require.NoError(t, repo.Create(ctx, ticket))

	got, err := repo.GetByID(ctx, "tkt_1")
	require.NoError(t, err)
	assert.Equal(t, "Refund", got.Subject)
	assert.Equal(t, entity.TicketPriorityHigh, got.Priority)
	assert.Equal(t, []string{"refund", "card"}, got.Tags)
	assert.Equal(t, "ad-9", got.Metadata["adId"])
	assert.True(t, created.Equal(got.CreatedAt))
	assert.Nil(t, got.ResolvedAt)

	resolvedAt := created.Add(time.Hour)
	got.ApplyStatus(entity.TicketStatusResolved, resolvedAt)
	got.ResolvedBy = "agent"
	require.NoError(t, repo.Update(ctx, got))

	got, err = repo.GetByID(ctx, "tkt_1")
	require.NoError(t, err)
	assert.Equal(t, entity.TicketStatusResolved, got.Status)
	require.NotNil(t, got.ResolvedAt)
	assert.True(t, resolvedAt.Equal(*got.ResolvedAt))
	assert.True(t, resolvedAt.Equal(got.UpdatedAt))

	got.ApplyStatus(entity.TicketStatusOpen, resolvedAt.Add(time.Hour))
	require.NoError(t, repo.Update(ctx, got))
	got, err = repo.GetByID(ctx, "tkt_1")
	require.NoError(t, err)
	assert.Nil(t, got.ResolvedAt)
}

func TestGormTicketNotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewGormTicketRepository(newTicketDB(t))

	_, err := repo.GetByID(ctx, "tkt_missing")
	assert.True(t, apperrors.IsNotFound(err))

	err = repo.Update(ctx, &entity.Ticket{ID: "tkt_missing", Status: entity.TicketStatusOpen, Priority: entity.TicketPriorityLow})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestGormTicketListByUser(t *testing.T) {
	ctx := context.Background()
	repo := NewGormTicketRepository(newTicketDB(t))
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	seed := []*entity.Ticket{
		{ID: "tkt_1", UserID: "u1", QueryType: "billing", Status: entity.TicketStatusOpen, Priority: entity.TicketPriorityLow, CreatedAt: base, UpdatedAt: base},
		{ID: "tkt_2", UserID: "u1", QueryType: "billing", Status: entity.TicketStatusClosed, Priority: entity.TicketPriorityUrgent, CreatedAt: base.Add(time.Hour), UpdatedAt: base.Add(time.Hour)},
		{ID: "tkt_3", UserID: "u1", QueryType: "account", Status: entity.TicketStatusOpen, Priority: entity.TicketPriorityMedium, CreatedAt: base.Add(2 * time.Hour), UpdatedAt: base.Add(2 * time.Hour)},
		{ID: "tkt_4", UserID: "u2", QueryType: "billing", Status: entity.TicketStatusOpen, Priority: entity.TicketPriorityLow, CreatedAt: base, UpdatedAt: base},
	}
	for _, tk := range seed {
		tk.Subject = "s"
		require.NoError(t, repo.Create(ctx, tk))
	}

	ids := func(tickets []*entity.Ticket) []string {
		out := make([]string, 0, len(tickets))
		for _, tk := range tickets {
			out = append(out, tk.ID)
		}
		return out
	}

	got, err := repo.ListByUser(ctx, "u1", entity.TicketFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"tkt_3", "tkt_2", "tkt_1"}, ids(got))

	got, err = repo.ListByUser(ctx, "u1", entity.TicketFilter{
		Statuses:   []entity.TicketStatus{entity.TicketStatusOpen, entity.TicketStatusClosed},
		QueryTypes: []string{"billing"},
		SortBy:     entity.TicketSortPriority,
		Order:      entity.SortDesc,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"tkt_2", "tkt_1"}, ids(got))

	got, err = repo.ListByUser(ctx, "u1", entity.TicketFilter{
		Statuses: []entity.TicketStatus{entity.TicketStatusOpen},
		Order:    entity.SortAsc,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"tkt_1", "tkt_3"}, ids(got))
}

func TestOpenTicketDBMigrates(t *testing.T) {
	db, err := openTicketDB(sqlite.Open(filepath.Join(t.TempDir(), "tickets.db")))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	assert.True(t, db.Migrator().HasTable(&ticketModel{}))
	require.NoError(t, MigrateTickets(db))
}

func TestOpenTicketDBRejectsUnknownDriver(t *testing.T) {
	_, err := OpenTicketDB("sqlserver", "")
	assert.ErrorContains(t, err, "unsupported ticket database driver")
}
