package service

import (
	"context"
	"fmt"

	"github.com/Lexcubia/EM-automate/internal/backend"
	"github.com/Lexcubia/EM-automate/internal/domain"
	"github.com/Lexcubia/EM-automate/internal/logger"
)

// HistoryStore is the persistence boundary for run records.
type HistoryStore interface {
	Append(ctx context.Context, record *domain.RunRecord) error
	Upsert(ctx context.Context, record *domain.RunRecord) error
	List(ctx context.Context, limit, offset int) ([]domain.RunRecord, error)
	Clear(ctx context.Context) error
}

// HistoryService keeps the local run history: a read-through cache over the
// backend's persisted history plus the records produced by terminal
// reconciliations on this side.
type HistoryService struct {
	store    HistoryStore
	backend  backend.Client
	pageSize int
	logger   *logger.Logger
}

// HistoryConfig holds history service settings.
type HistoryConfig struct {
	PageSize int
}

// NewHistoryService creates a history service.
func NewHistoryService(store HistoryStore, client backend.Client, log *logger.Logger, cfg *HistoryConfig) *HistoryService {
	pageSize := 50
	if cfg != nil && cfg.PageSize > 0 {
		pageSize = cfg.PageSize
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &HistoryService{
		store:    store,
		backend:  client,
		pageSize: pageSize,
		logger:   log,
	}
}

// Record appends one terminal run record and refreshes the cache from the
// backend. The append is the one required side effect; a failed refresh is
// only logged.
func (s *HistoryService) Record(ctx context.Context, record *domain.RunRecord) {
	if err := s.store.Append(ctx, record); err != nil {
		s.log(ctx).WithError(err).WithField(logger.FieldRunID, record.ID).
			Error("Failed to persist run record")
	}
	if err := s.Refresh(ctx); err != nil {
		s.log(ctx).WithError(err).Debug("History refresh after run termination failed")
	}
}

// List returns run records, newest first. A non-positive limit falls back
// to the configured page size.
func (s *HistoryService) List(ctx context.Context, limit, offset int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = s.pageSize
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.List(ctx, limit, offset)
}

// Refresh pulls the backend's persisted history into the local cache.
func (s *HistoryService) Refresh(ctx context.Context) error {
	records, err := s.backend.FetchHistory(ctx)
	if err != nil {
		return err
	}
	for i := range records {
		if err := s.store.Upsert(ctx, &records[i]); err != nil {
			return fmt.Errorf("failed to cache history record %s: %w", records[i].ID, err)
		}
	}
	return nil
}

// Clear deletes history on the backend first, then locally. The backend is
// authoritative: a failed remote deletion leaves the local cache intact.
func (s *HistoryService) Clear(ctx context.Context) error {
	ok, err := s.backend.ClearHistory(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("backend declined history deletion")
	}
	return s.store.Clear(ctx)
}

func (s *HistoryService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}
