// Package ledger implements the membership toggle behind likes, saves and
// follows. A toggle flips a member in or out of an owner's set, recounts
// the set and persists the count, so counters always equal cardinality.
package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"ajeyam/internal/telemetry"
)

// Membership is a set of members per owner. Implementations must give set
// semantics: Add of a present member is a no-op.
type Membership interface {
	Name() string
	Contains(ctx context.Context, owner, member uuid.UUID) (bool, error)
	Add(ctx context.Context, owner, member uuid.UUID) error
	Remove(ctx context.Context, owner, member uuid.UUID) error
	Count(ctx context.Context, owner uuid.UUID) (int, error)
	// SetCount stores the denormalized counter. Relations without a
	// counter column implement it as a no-op.
	SetCount(ctx context.Context, owner uuid.UUID, n int) error
}

// Outcome reports the state after a toggle.
type Outcome struct {
	Present bool `json:"present"`
	Count   int  `json:"count"`
}

// Toggle removes member from owner's set when present and adds it when
// absent, then recomputes and persists the count.
func Toggle(ctx context.Context, m Membership, owner, member uuid.UUID) (out Outcome, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "ledger.toggle")
	span.SetAttributes(attribute.String("ledger.relation", m.Name()))
	defer func() { telemetry.EndSpan(span, err) }()

	present, err := m.Contains(ctx, owner, member)
	if err != nil {
		return Outcome{}, fmt.Errorf("%s contains: %w", m.Name(), err)
	}

	if present {
		err = m.Remove(ctx, owner, member)
	} else {
		err = m.Add(ctx, owner, member)
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("%s toggle: %w", m.Name(), err)
	}

	n, err := m.Count(ctx, owner)
	if err != nil {
		return Outcome{}, fmt.Errorf("%s count: %w", m.Name(), err)
	}
	if err = m.SetCount(ctx, owner, n); err != nil {
		return Outcome{}, fmt.Errorf("%s set count: %w", m.Name(), err)
	}

	out = Outcome{Present: !present, Count: n}
	span.SetAttributes(attribute.Bool("ledger.present", out.Present), attribute.Int("ledger.count", n))
	telemetry.RecordToggle(ctx, m.Name(), out.Present)
	return out, nil
}
