// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// moderation_log.go records moderation transitions for audit. Each entry
// captures the entity, the action, the status before and after, and who
// performed it.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ajeyam/internal/models"
)

// ModerationLogStore handles moderation audit log operations.
type ModerationLogStore struct {
	db *sql.DB
}

// NewModerationLogStore creates a new ModerationLogStore.
func NewModerationLogStore(db *sql.DB) *ModerationLogStore {
	return &ModerationLogStore{db: db}
}

// ModerationEntry represents a single recorded transition.
type ModerationEntry struct {
	ID         int64         `json:"id"`
	EntityType string        `json:"entityType"`
	EntityID   uuid.UUID     `json:"entityId"`
	Action     string        `json:"action"`
	FromStatus models.Status `json:"fromStatus"`
	ToStatus   models.Status `json:"toStatus"`
	ActorID    *uuid.UUID    `json:"actorId"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// Log records a moderation transition. Failures are logged, not returned:
// the transition itself has already been persisted.
func (s *ModerationLogStore) Log(ctx context.Context, e ModerationEntry) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO moderation_log (entity_type, entity_id, action, from_status, to_status, actor_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.EntityType, e.EntityID, e.Action, string(e.FromStatus), string(e.ToStatus), e.ActorID)
	if err != nil {
		slog.Warn("failed to log moderation transition",
			"entity_type", e.EntityType,
			"entity_id", e.EntityID,
			"action", e.Action,
			"error", err,
		)
		return
	}
	slog.Debug("moderation transition logged",
		"entity_type", e.EntityType,
		"entity_id", e.EntityID,
		"action", e.Action,
		"from", e.FromStatus,
		"to", e.ToStatus,
	)
}

// RecentEntries returns the most recent transitions, newest first.
func (s *ModerationLogStore) RecentEntries(ctx context.Context, limit int) ([]ModerationEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_type, entity_id, action, from_status, to_status, actor_id, created_at
		FROM moderation_log
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query moderation log: %w", err)
	}
	defer rows.Close()

	entries := []ModerationEntry{}
	for rows.Next() {
		var e ModerationEntry
		err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &e.Action,
			&e.FromStatus, &e.ToStatus, &e.ActorID, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan moderation log: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ForEntity returns the transitions of one entity, oldest first.
func (s *ModerationLogStore) ForEntity(ctx context.Context, entityType string, id uuid.UUID) ([]ModerationEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_type, entity_id, action, from_status, to_status, actor_id, created_at
		FROM moderation_log
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY id
	`, entityType, id)
	if err != nil {
		return nil, fmt.Errorf("query moderation log for entity: %w", err)
	}
	defer rows.Close()

	entries := []ModerationEntry{}
	for rows.Next() {
		var e ModerationEntry
		err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &e.Action,
			&e.FromStatus, &e.ToStatus, &e.ActorID, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan moderation log: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
