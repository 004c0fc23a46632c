package moderation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"ajeyam/internal/apperr"
	"ajeyam/internal/models"
)

var (
	now      = time.Date(2026, 5, 10, 9, 30, 0, 0, time.UTC)
	earlier  = now.Add(-48 * time.Hour)
	admin    = Actor{Admin: true}
	owner    = Actor{Owner: true}
	stranger = Actor{}
)

func reason(s string) *string { return &s }

func TestCreate(t *testing.T) {
	tests := []struct {
		name    string
		machine Machine
		actor   Actor
		status  models.Status
		want    models.Status
	}{
		{"blog by user is pending", Blog, owner, "", models.StatusPending},
		{"blog by user cannot pick published", Blog, owner, models.StatusPublished, models.StatusPending},
		{"blog by admin defaults to draft", Blog, admin, "", models.StatusDraft},
		{"blog by admin may pick pending", Blog, admin, models.StatusPending, models.StatusPending},
		{"blog by admin may publish", Blog, admin, models.StatusPublished, models.StatusPublished},
		{"review by user is pending", Review, owner, "", models.StatusPending},
		{"review by admin is still pending", Review, admin, models.StatusPublished, models.StatusPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.machine.Transition(models.Moderation{}, Request{
				Action: ActionCreate, Actor: tt.actor, Status: tt.status, Now: now,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Status)
			assert.Nil(t, got.RejectionReason)
			if tt.want == models.StatusPublished {
				require.NotNil(t, got.PublishedAt)
				assert.Equal(t, now, *got.PublishedAt)
			} else {
				assert.Nil(t, got.PublishedAt)
			}
		})
	}
}

func TestCreateRejectsInvalidAdminStatus(t *testing.T) {
	_, err := Blog.Transition(models.Moderation{}, Request{
		Action: ActionCreate, Actor: admin, Status: models.StatusRejected, Now: now,
	})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = Blog.Transition(models.Moderation{}, Request{
		Action: ActionCreate, Actor: admin, Status: "archived", Now: now,
	})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestApprove(t *testing.T) {
	t.Run("pending becomes published", func(t *testing.T) {
		got, err := Blog.Transition(models.Moderation{Status: models.StatusPending}, Request{
			Action: ActionApprove, Actor: admin, Now: now,
		})
		require.NoError(t, err)
		assert.Equal(t, models.StatusPublished, got.Status)
		require.NotNil(t, got.PublishedAt)
		assert.Equal(t, now, *got.PublishedAt)
		assert.Nil(t, got.RejectionReason)
	})

	t.Run("keeps first publication time", func(t *testing.T) {
		first := earlier
		got, err := Review.Transition(models.Moderation{Status: models.StatusPending, PublishedAt: &first}, Request{
			Action: ActionApprove, Actor: admin, Now: now,
		})
		require.NoError(t, err)
		assert.Equal(t, earlier, *got.PublishedAt)
	})

	for _, status := range []models.Status{models.StatusDraft, models.StatusPublished, models.StatusRejected} {
		t.Run("refuses "+string(status), func(t *testing.T) {
			cur := models.Moderation{Status: status}
			got, err := Blog.Transition(cur, Request{Action: ActionApprove, Actor: admin, Now: now})
			require.Error(t, err)
			assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
			assert.Equal(t, "Only pending blogs can be approved", apperr.Message(err))
			assert.Equal(t, cur, got)
		})
	}

	t.Run("requires admin", func(t *testing.T) {
		_, err := Blog.Transition(models.Moderation{Status: models.StatusPending}, Request{
			Action: ActionApprove, Actor: owner, Now: now,
		})
		assert.Equal(t, apperr.KindPermission, apperr.KindOf(err))
	})
}

func TestReject(t *testing.T) {
	pending := models.Moderation{Status: models.StatusPending}

	t.Run("blog requires a reason", func(t *testing.T) {
		got, err := Blog.Transition(pending, Request{Action: ActionReject, Actor: admin, Reason: "  ", Now: now})
		require.Error(t, err)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		assert.Equal(t, "Rejection reason is required", apperr.Message(err))
		assert.Equal(t, pending, got)
	})

	t.Run("blog with reason", func(t *testing.T) {
		got, err := Blog.Transition(pending, Request{Action: ActionReject, Actor: admin, Reason: "Needs sources", Now: now})
		require.NoError(t, err)
		assert.Equal(t, models.StatusRejected, got.Status)
		assert.Equal(t, reason("Needs sources"), got.RejectionReason)
	})

	t.Run("review defaults the reason", func(t *testing.T) {
		got, err := Review.Transition(pending, Request{Action: ActionReject, Actor: admin, Now: now})
		require.NoError(t, err)
		assert.Equal(t, reason("Rejected by admin"), got.RejectionReason)
	})

	t.Run("refuses published", func(t *testing.T) {
		published := models.Moderation{Status: models.StatusPublished, PublishedAt: &earlier}
		got, err := Review.Transition(published, Request{Action: ActionReject, Actor: admin, Now: now})
		assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
		assert.Equal(t, "Only pending reviews can be rejected", apperr.Message(err))
		assert.Equal(t, published, got)
	})
}

func TestEdit(t *testing.T) {
	tests := []struct {
		name  string
		cur   models.Status
		actor Actor
		asked models.Status
		want  models.Status
	}{
		{"owner edit of published goes back to pending", models.StatusPublished, owner, "", models.StatusPending},
		{"owner edit of draft stays draft", models.StatusDraft, owner, "", models.StatusDraft},
		{"owner edit of rejected stays rejected", models.StatusRejected, owner, "", models.StatusRejected},
		{"owner cannot choose a status", models.StatusPending, owner, models.StatusPublished, models.StatusPending},
		{"admin edit keeps published", models.StatusPublished, admin, "", models.StatusPublished},
		{"admin edit may set status", models.StatusDraft, admin, models.StatusPublished, models.StatusPublished},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cur := models.Moderation{Status: tt.cur}
			if tt.cur == models.StatusRejected {
				cur.RejectionReason = reason("Too short")
			}
			got, err := Blog.Transition(cur, Request{Action: ActionEdit, Actor: tt.actor, Status: tt.asked, Now: now})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, got.Status == models.StatusRejected, got.RejectionReason != nil)
		})
	}

	t.Run("published edit keeps publication time", func(t *testing.T) {
		got, err := Blog.Transition(models.Moderation{Status: models.StatusPublished, PublishedAt: &earlier}, Request{
			Action: ActionEdit, Actor: owner, Now: now,
		})
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, got.Status)
		assert.Equal(t, &earlier, got.PublishedAt)
	})

	t.Run("stranger is refused", func(t *testing.T) {
		_, err := Blog.Transition(models.Moderation{Status: models.StatusDraft}, Request{
			Action: ActionEdit, Actor: stranger, Now: now,
		})
		assert.Equal(t, apperr.KindPermission, apperr.KindOf(err))
		assert.Equal(t, "You can only edit your own blogs", apperr.Message(err))
	})
}

func TestOverride(t *testing.T) {
	t.Run("rejected gets default reason", func(t *testing.T) {
		got, err := Blog.Transition(models.Moderation{Status: models.StatusPublished, PublishedAt: &earlier}, Request{
			Action: ActionOverride, Actor: admin, Status: models.StatusRejected, Now: now,
		})
		require.NoError(t, err)
		assert.Equal(t, reason("Blog was rejected by admin"), got.RejectionReason)
		assert.Equal(t, &earlier, got.PublishedAt, "publishedAt is never cleared")
	})

	t.Run("leaving rejected clears the reason", func(t *testing.T) {
		got, err := Blog.Transition(models.Moderation{Status: models.StatusRejected, RejectionReason: reason("x")}, Request{
			Action: ActionOverride, Actor: admin, Status: models.StatusDraft, Now: now,
		})
		require.NoError(t, err)
		assert.Equal(t, models.StatusDraft, got.Status)
		assert.Nil(t, got.RejectionReason)
	})

	t.Run("publish sets publishedAt once", func(t *testing.T) {
		got, err := Blog.Transition(models.Moderation{Status: models.StatusRejected, RejectionReason: reason("x")}, Request{
			Action: ActionOverride, Actor: admin, Status: models.StatusPublished, Now: now,
		})
		require.NoError(t, err)
		assert.Equal(t, now, *got.PublishedAt)
		assert.Nil(t, got.RejectionReason)
	})

	t.Run("reviews have no draft", func(t *testing.T) {
		_, err := Review.Transition(models.Moderation{Status: models.StatusPending}, Request{
			Action: ActionOverride, Actor: admin, Status: models.StatusDraft, Now: now,
		})
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	})

	t.Run("requires admin", func(t *testing.T) {
		_, err := Blog.Transition(models.Moderation{Status: models.StatusPending}, Request{
			Action: ActionOverride, Actor: owner, Status: models.StatusPublished, Now: now,
		})
		assert.Equal(t, apperr.KindPermission, apperr.KindOf(err))
	})
}

func TestTransitionDoesNotAliasInput(t *testing.T) {
	r := reason("original")
	cur := models.Moderation{Status: models.StatusPending, RejectionReason: nil, PublishedAt: nil}
	got, err := Blog.Transition(cur, Request{Action: ActionReject, Actor: admin, Reason: "changed", Now: now})
	require.NoError(t, err)
	assert.Nil(t, cur.RejectionReason)
	assert.Equal(t, models.StatusPending, cur.Status)
	assert.NotSame(t, r, got.RejectionReason)
}

func TestApplyMatchesTransition(t *testing.T) {
	cur := models.Moderation{Status: models.StatusPending}
	req := Request{Action: ActionApprove, Actor: admin, Now: now}

	want, wantErr := Blog.Transition(cur, req)
	got, err := Blog.Apply(context.Background(), cur, req)
	assert.Equal(t, wantErr, err)
	assert.Equal(t, want, got)
}

func spanAttrs(kvs []attribute.KeyValue) map[string]string {
	out := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		out[string(kv.Key)] = kv.Value.Emit()
	}
	return out
}

func TestApplyRecordsTransitionSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		_ = tp.Shutdown(context.Background())
	})

	ctx := context.Background()
	approve := Request{Action: ActionApprove, Actor: admin, Now: now}
	_, err := Blog.Apply(ctx, models.Moderation{Status: models.StatusPending}, approve)
	require.NoError(t, err)
	_, err = Blog.Apply(ctx, models.Moderation{Status: models.StatusPublished}, approve)
	require.Error(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 2)

	ok := spans[0]
	assert.Equal(t, "moderation.transition", ok.Name())
	attrs := spanAttrs(ok.Attributes())
	assert.Equal(t, "blogs", attrs["moderation.kind"])
	assert.Equal(t, "approve", attrs["moderation.action"])
	assert.Equal(t, "pending", attrs["moderation.from"])
	assert.Equal(t, "published", attrs["moderation.to"])
	assert.Equal(t, codes.Unset, ok.Status().Code)

	refused := spans[1]
	attrs = spanAttrs(refused.Attributes())
	assert.Equal(t, "published", attrs["moderation.from"])
	assert.NotContains(t, attrs, "moderation.to")
	assert.Equal(t, codes.Error, refused.Status().Code)
	assert.Equal(t, "Only pending blogs can be approved", refused.Status().Description)
}

func TestUnknownAction(t *testing.T) {
	_, err := Blog.Transition(models.Moderation{Status: models.StatusPending}, Request{Action: "archive", Actor: admin})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
