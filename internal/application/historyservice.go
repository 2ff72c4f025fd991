package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/keyquota/internal/domain/model"
	"github.com/ericfisherdev/keyquota/internal/domain/port/driven"
)

// HistoryService keeps the bounded, most-recent-first query history as
// plaintext JSON in the key-value store.
type HistoryService struct {
	store  driven.KVStore
	limit  int
	logger *slog.Logger
}

// NewHistoryService creates a HistoryService retaining at most limit entries.
func NewHistoryService(store driven.KVStore, limit int, logger *slog.Logger) *HistoryService {
	if limit <= 0 {
		limit = model.DefaultHistoryLimit
	}
	return &HistoryService{store: store, limit: limit, logger: logger}
}

// List returns the stored entries, most recent first. A corrupted log reads
// as empty.
func (h *HistoryService) List(ctx context.Context) ([]model.HistoryEntry, error) {
	raw, ok, err := h.store.Get(ctx, driven.HistoryStorageKey)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if !ok || raw == "" {
		return []model.HistoryEntry{}, nil
	}

	var entries []model.HistoryEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		h.logger.Warn("discarding unreadable query history", "error", err)
		return []model.HistoryEntry{}, nil
	}
	if entries == nil {
		entries = []model.HistoryEntry{}
	}
	return entries, nil
}

// Add records entry at the head of the log, evicting the oldest beyond the cap.
func (h *HistoryService) Add(ctx context.Context, entry model.HistoryEntry) error {
	entries, err := h.List(ctx)
	if err != nil {
		return err
	}

	entries = model.PushHistory(entries, entry, h.limit)

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	if err := h.store.Set(ctx, driven.HistoryStorageKey, string(data)); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

// Clear removes the whole log.
func (h *HistoryService) Clear(ctx context.Context) error {
	if err := h.store.Delete(ctx, driven.HistoryStorageKey); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}
