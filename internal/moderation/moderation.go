// Package moderation implements the content lifecycle as an explicit
// transition function:
//
//	draft ──► pending ──► published
//	             │
//	             └──────► rejected
//
// Draft exists only for blogs created by an admin. Leaving published or
// rejected is possible only through an admin override. Transition never
// mutates its input; on error the caller's state is untouched.
package moderation

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"ajeyam/internal/apperr"
	"ajeyam/internal/models"
	"ajeyam/internal/telemetry"
)

// Action is a requested lifecycle change.
type Action string

const (
	ActionCreate   Action = "create"
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionEdit     Action = "edit"
	ActionOverride Action = "override"
)

// Actor describes who is asking, relative to the entity.
type Actor struct {
	Admin bool
	Owner bool
}

// Request is one transition attempt. Status is the status asked for on
// create or override; Reason is the rejection reason, if any.
type Request struct {
	Action Action
	Actor  Actor
	Status models.Status
	Reason string
	Now    time.Time
}

// Machine holds the per-kind rules. Blog and Review are the two kinds.
type Machine struct {
	Kind string // plural noun used in messages, e.g. "blogs"

	AllowDraft           bool
	AdminChoosesOnCreate bool
	RequireRejectReason  bool
	DefaultRejectReason  string
	OverrideReason       string
}

var (
	Blog = Machine{
		Kind:                 "blogs",
		AllowDraft:           true,
		AdminChoosesOnCreate: true,
		RequireRejectReason:  true,
		OverrideReason:       "Blog was rejected by admin",
	}
	Review = Machine{
		Kind:                "reviews",
		DefaultRejectReason: "Rejected by admin",
		OverrideReason:      "Rejected by admin",
	}
)

// Allows reports whether s is a status this kind can hold.
func (m Machine) Allows(s models.Status) bool {
	if s == models.StatusDraft {
		return m.AllowDraft
	}
	return s.Valid()
}

// Transition computes the moderation fields that result from req applied
// to cur. The returned value is a fresh copy.
func (m Machine) Transition(cur models.Moderation, req Request) (models.Moderation, error) {
	if req.Now.IsZero() {
		req.Now = time.Now()
	}

	switch req.Action {
	case ActionCreate:
		return m.create(req)
	case ActionApprove:
		if !req.Actor.Admin {
			return cur, apperr.Permission("You do not have permission to perform this action")
		}
		if cur.Status != models.StatusPending {
			return cur, apperr.InvalidState("Only pending %s can be approved", m.Kind)
		}
		return publish(cur, req.Now), nil
	case ActionReject:
		if !req.Actor.Admin {
			return cur, apperr.Permission("You do not have permission to perform this action")
		}
		if cur.Status != models.StatusPending {
			return cur, apperr.InvalidState("Only pending %s can be rejected", m.Kind)
		}
		reason := strings.TrimSpace(req.Reason)
		if reason == "" {
			if m.RequireRejectReason {
				return cur, apperr.Validation("Rejection reason is required")
			}
			reason = m.DefaultRejectReason
		}
		return reject(cur, reason), nil
	case ActionEdit:
		return m.edit(cur, req)
	case ActionOverride:
		return m.override(cur, req)
	}
	return cur, apperr.Validation("Unknown moderation action %q", req.Action)
}

func (m Machine) create(req Request) (models.Moderation, error) {
	if !req.Actor.Admin || !m.AdminChoosesOnCreate {
		return models.Moderation{Status: models.StatusPending}, nil
	}

	target := req.Status
	if target == "" {
		target = models.StatusPending
		if m.AllowDraft {
			target = models.StatusDraft
		}
	}
	if !m.Allows(target) || target == models.StatusRejected {
		return models.Moderation{}, apperr.Validation("Invalid status %q", target)
	}

	out := models.Moderation{Status: target}
	if target == models.StatusPublished {
		out = publish(out, req.Now)
	}
	return out, nil
}

func (m Machine) edit(cur models.Moderation, req Request) (models.Moderation, error) {
	if !req.Actor.Admin && !req.Actor.Owner {
		return cur, apperr.Permission("You can only edit your own %s", m.Kind)
	}
	if req.Actor.Admin {
		if req.Status == "" || req.Status == cur.Status {
			return cur, nil
		}
		return m.override(cur, req)
	}
	// Status requested by a non-admin is ignored.
	if cur.Status == models.StatusPublished {
		out := cur
		out.Status = models.StatusPending
		return out, nil
	}
	return cur, nil
}

func (m Machine) override(cur models.Moderation, req Request) (models.Moderation, error) {
	if !req.Actor.Admin {
		return cur, apperr.Permission("You do not have permission to perform this action")
	}
	if !m.Allows(req.Status) {
		return cur, apperr.Validation("Invalid status %q", req.Status)
	}

	switch req.Status {
	case models.StatusRejected:
		reason := strings.TrimSpace(req.Reason)
		if reason == "" {
			reason = m.OverrideReason
		}
		return reject(cur, reason), nil
	case models.StatusPublished:
		return publish(cur, req.Now), nil
	default:
		out := cur
		out.Status = req.Status
		out.RejectionReason = nil
		return out, nil
	}
}

func publish(cur models.Moderation, now time.Time) models.Moderation {
	out := cur
	out.Status = models.StatusPublished
	out.RejectionReason = nil
	if out.PublishedAt == nil {
		t := now
		out.PublishedAt = &t
	}
	return out
}

func reject(cur models.Moderation, reason string) models.Moderation {
	out := cur
	out.Status = models.StatusRejected
	out.RejectionReason = &reason
	return out
}

// Apply runs Transition inside a span and records the outcome.
func (m Machine) Apply(ctx context.Context, cur models.Moderation, req Request) (models.Moderation, error) {
	_, span := telemetry.Tracer().Start(ctx, "moderation.transition")
	span.SetAttributes(
		attribute.String("moderation.kind", m.Kind),
		attribute.String("moderation.action", string(req.Action)),
		attribute.String("moderation.from", string(cur.Status)),
	)

	out, err := m.Transition(cur, req)
	if err == nil {
		span.SetAttributes(attribute.String("moderation.to", string(out.Status)))
	}
	telemetry.RecordTransition(ctx, m.Kind, string(req.Action), string(out.Status), err)
	telemetry.EndSpan(span, err)
	return out, err
}
