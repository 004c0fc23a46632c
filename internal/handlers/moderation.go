package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"ajeyam/internal/middleware"
	"ajeyam/internal/models"
	"ajeyam/internal/moderation"
	"ajeyam/internal/store"
)

const defaultLogLimit = 50

// Moderation serves the moderation audit log.
type Moderation struct {
	log *store.ModerationLogStore
}

// NewModeration creates a new Moderation handler group.
func NewModeration(log *store.ModerationLogStore) *Moderation {
	return &Moderation{log: log}
}

// Log lists the most recent transitions, newest first.
func (m *Moderation) Log(w http.ResponseWriter, r *http.Request) {
	entries, err := m.log.RecentEntries(r.Context(), queryLimit(r, defaultLogLimit))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"status":  "success",
		"results": len(entries),
		"data":    envelope{"entries": entries},
	})
}

// actorFor describes user relative to an entity owned by ownerID.
func actorFor(user *models.User, ownerID uuid.UUID) moderation.Actor {
	if user == nil {
		return moderation.Actor{}
	}
	return moderation.Actor{Admin: user.IsAdmin(), Owner: user.ID == ownerID}
}

// transition runs req through machine and, when the status changed,
// records it in the audit log under entityType.
func transition(ctx context.Context, log *store.ModerationLogStore, machine moderation.Machine,
	entityType string, entityID uuid.UUID, cur models.Moderation, req moderation.Request,
) (models.Moderation, error) {
	if req.Now.IsZero() {
		req.Now = time.Now()
	}
	out, err := machine.Apply(ctx, cur, req)
	if err != nil {
		return cur, err
	}
	if out.Status != cur.Status && entityID != uuid.Nil {
		recordTransition(ctx, log, entityType, entityID, req.Action, cur.Status, out.Status)
	}
	return out, nil
}

// recordTransition writes one audit entry attributed to the request's user.
func recordTransition(ctx context.Context, log *store.ModerationLogStore, entityType string,
	entityID uuid.UUID, action moderation.Action, from, to models.Status,
) {
	var actorID *uuid.UUID
	if u := middleware.UserFromCtx(ctx); u != nil {
		id := u.ID
		actorID = &id
	}
	log.Log(ctx, store.ModerationEntry{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     string(action),
		FromStatus: from,
		ToStatus:   to,
		ActorID:    actorID,
	})
}

// parseStatuses reads a comma separated status filter, ignoring unknown
// values.
func parseStatuses(raw string, allowed func(models.Status) bool) []models.Status {
	var out []models.Status
	for _, part := range splitComma(raw) {
		st := models.Status(part)
		if allowed(st) {
			out = append(out, st)
		}
	}
	return out
}
