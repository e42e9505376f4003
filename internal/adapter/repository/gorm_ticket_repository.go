package repository

import (
	"context"
	stderrors "errors"
	"fmt"
	"log"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"adchat/internal/domain/entity"
	"adchat/internal/domain/repository"
	"adchat/pkg/errors"
)

// ticketModel is the SQL row for a ticket. Timestamps are owned by the
// ticket lifecycle, so GORM must not touch them.
type ticketModel struct {
	ID             string                                 `gorm:"primaryKey;size:64"`
	UserID         string                                 `gorm:"size:128;not null;index"`
	Subject        string                                 `gorm:"not null"`
	Message        string                                 `gorm:"type:text"`
	QueryType      string                                 `gorm:"size:64;index"`
	Status         string                                 `gorm:"size:32;not null;index"`
	Priority       string                                 `gorm:"size:16;not null"`
	PriorityRank   int                                    `gorm:"not null"`
	ChatID         string                                 `gorm:"size:128"`
	CreatedAt      time.Time                              `gorm:"autoCreateTime:false"`
	UpdatedAt      time.Time                              `gorm:"autoUpdateTime:false"`
	ResolvedAt     *time.Time
	ClosedAt       *time.Time
	ResolutionNote string                                 `gorm:"type:text"`
	ResolvedBy     string                                 `gorm:"size:128"`
	ClosedBy       string                                 `gorm:"size:128"`
	Tags           datatypes.JSONSlice[string]
	Metadata       datatypes.JSONType[map[string]string]
}

func (ticketModel) TableName() string {
	return "tickets"
}

func toTicketModel(t *entity.Ticket) *ticketModel {
	metadata := t.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	return &ticketModel{
		ID:             t.ID,
		UserID:         t.UserID,
		Subject:        t.Subject,
		Message:        t.Message,
		QueryType:      t.QueryType,
		Status:         string(t.Status),
		Priority:       string(t.Priority),
		PriorityRank:   t.Priority.Rank(),
		ChatID:         t.ChatID,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
		ResolvedAt:     t.ResolvedAt,
		ClosedAt:       t.ClosedAt,
		ResolutionNote: t.ResolutionNote,
		ResolvedBy:     t.ResolvedBy,
		ClosedBy:       t.ClosedBy,
		Tags:           datatypes.JSONSlice[string](t.Tags),
		Metadata:       datatypes.NewJSONType(metadata),
	}
}

func (m *ticketModel) toEntity() *entity.Ticket {
	t := &entity.Ticket{
		ID:             m.ID,
		UserID:         m.UserID,
		Subject:        m.Subject,
		Message:        m.Message,
		QueryType:      m.QueryType,
		Status:         entity.TicketStatus(m.Status),
		Priority:       entity.TicketPriority(m.Priority),
		ChatID:         m.ChatID,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
		ResolvedAt:     m.ResolvedAt,
		ClosedAt:       m.ClosedAt,
		ResolutionNote: m.ResolutionNote,
		ResolvedBy:     m.ResolvedBy,
		ClosedBy:       m.ClosedBy,
		Tags:           []string(m.Tags),
	}
	if md := m.Metadata.Data(); len(md) > 0 {
		t.Metadata = md
	}
	return t
}

type gormTicketRepository struct {
	db *gorm.DB
}

func NewGormTicketRepository(db *gorm.DB) repository.TicketRepository {
	return &gormTicketRepository{
		db: db,
	}
}

// OpenTicketDB connects to the ticket database for driver ("postgres" or
// "mysql") and migrates the tickets table.
func OpenTicketDB(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported ticket database driver %q", driver)
	}
	return openTicketDB(dialector)
}

// openTicketDB opens dialector with pool limits and migrates the tickets
// table, so callers need no separate migration step.
func openTicketDB(dialector gorm.Dialector) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := MigrateTickets(db); err != nil {
		return nil, err
	}
	log.Printf("Connected ticket database (%s)", dialector.Name())
	return db, nil
}

func MigrateTickets(db *gorm.DB) error {
	return db.AutoMigrate(&ticketModel{})
}

func (r *gormTicketRepository) Create(ctx context.Context, ticket *entity.Ticket) error {
	if err := r.db.WithContext(ctx).Create(toTicketModel(ticket)).Error; err != nil {
		if stderrors.Is(err, gorm.ErrDuplicatedKey) {
			return errors.Conflict(fmt.Sprintf("Ticket %s already exists", ticket.ID), err)
		}
		return errors.Internal("Failed to create ticket", err)
	}
	return nil
}

func (r *gormTicketRepository) GetByID(ctx context.Context, id string) (*entity.Ticket, error) {
	var m ticketModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("Ticket", err)
		}
		return nil, errors.Internal("Failed to get ticket", err)
	}
	return m.toEntity(), nil
}

func (r *gormTicketRepository) Update(ctx context.Context, ticket *entity.Ticket) error {
	res := r.db.WithContext(ctx).Model(&ticketModel{}).
		Where("id = ?", ticket.ID).
		Select("*").
		Updates(toTicketModel(ticket))
	if res.Error != nil {
		return errors.Internal("Failed to update ticket", res.Error)
	}
	if res.RowsAffected == 0 {
		return errors.NotFound("Ticket", nil)
	}
	return nil
}

func (r *gormTicketRepository) ListByUser(ctx context.Context, userID string, filter entity.TicketFilter) ([]*entity.Ticket, error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if len(filter.QueryTypes) > 0 {
		query = query.Where("query_type IN ?", filter.QueryTypes)
	}
	for _, clause := range ticketOrder(filter) {
		query = query.Order(clause)
	}

	var rows []ticketModel
	if err := query.Find(&rows).Error; err != nil {
		log.Printf("Database error while listing tickets for user %s: %v", userID, err)
		return nil, errors.Internal("Failed to list tickets", err)
	}

	tickets := make([]*entity.Ticket, 0, len(rows))
	for i := range rows {
		tickets = append(tickets, rows[i].toEntity())
	}
	return tickets, nil
}

// ticketOrder mirrors entity.TicketFilter.Sort: the sort column, then
// created_at, then id, all in the same direction.
func ticketOrder(filter entity.TicketFilter) []string {
	dir := "DESC"
	if filter.Order == entity.SortAsc {
		dir = "ASC"
	}

	var clauses []string
	switch filter.SortBy {
	case entity.TicketSortUpdatedAt:
		clauses = append(clauses, "updated_at "+dir)
	case entity.TicketSortPriority:
		clauses = append(clauses, "priority_rank "+dir)
	case entity.TicketSortStatus:
		clauses = append(clauses, "status "+dir)
	}
	return append(clauses, "created_at "+dir, "id "+dir)
}
