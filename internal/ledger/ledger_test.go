package ledger

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// memSet is an in-memory Membership with a stored counter, standing in for
// a join table plus counter column.
type memSet struct {
	sets     map[uuid.UUID]map[uuid.UUID]bool
	counters map[uuid.UUID]int
	failAdd  bool
}

func newMemSet() *memSet {
	return &memSet{
		sets:     make(map[uuid.UUID]map[uuid.UUID]bool),
		counters: make(map[uuid.UUID]int),
	}
}

func (m *memSet) Name() string { return "test_likes" }

func (m *memSet) Contains(_ context.Context, owner, member uuid.UUID) (bool, error) {
	return m.sets[owner][member], nil
}

func (m *memSet) Add(_ context.Context, owner, member uuid.UUID) error {
	if m.failAdd {
		return errors.New("insert failed")
	}
	if m.sets[owner] == nil {
		m.sets[owner] = make(map[uuid.UUID]bool)
	}
	m.sets[owner][member] = true
	return nil
}

func (m *memSet) Remove(_ context.Context, owner, member uuid.UUID) error {
	delete(m.sets[owner], member)
	return nil
}

func (m *memSet) Count(_ context.Context, owner uuid.UUID) (int, error) {
	return len(m.sets[owner]), nil
}

func (m *memSet) SetCount(_ context.Context, owner uuid.UUID, n int) error {
	m.counters[owner] = n
	return nil
}

func TestToggleAddsThenRemoves(t *testing.T) {
	ctx := context.Background()
	m := newMemSet()
	blog, reader := uuid.New(), uuid.New()

	out, err := Toggle(ctx, m, blog, reader)
	require.NoError(t, err)
	assert.Equal(t, Outcome{Present: true, Count: 1}, out)
	assert.Equal(t, 1, m.counters[blog])

	out, err = Toggle(ctx, m, blog, reader)
	require.NoError(t, err)
	assert.Equal(t, Outcome{Present: false, Count: 0}, out)
	assert.Equal(t, 0, m.counters[blog])
}

func TestToggleTwiceIsIdentity(t *testing.T) {
	ctx := context.Background()
	m := newMemSet()
	blog := uuid.New()
	others := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, u := range others {
		_, err := Toggle(ctx, m, blog, u)
		require.NoError(t, err)
	}
	before := len(m.sets[blog])

	reader := uuid.New()
	_, err := Toggle(ctx, m, blog, reader)
	require.NoError(t, err)
	_, err = Toggle(ctx, m, blog, reader)
	require.NoError(t, err)

	assert.Equal(t, before, len(m.sets[blog]))
	assert.False(t, m.sets[blog][reader])
	for _, u := range others {
		assert.True(t, m.sets[blog][u])
	}
}

func TestCounterMatchesCardinality(t *testing.T) {
	ctx := context.Background()
	m := newMemSet()
	owners := []uuid.UUID{uuid.New(), uuid.New()}
	members := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New()}

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		owner := owners[rng.Intn(len(owners))]
		member := members[rng.Intn(len(members))]
		out, err := Toggle(ctx, m, owner, member)
		require.NoError(t, err)
		assert.Equal(t, len(m.sets[owner]), out.Count)
		assert.Equal(t, m.sets[owner][member], out.Present)
	}
	for _, owner := range owners {
		assert.Equal(t, len(m.sets[owner]), m.counters[owner])
	}
}

func TestToggleStopsOnError(t *testing.T) {
	m := newMemSet()
	m.failAdd = true
	blog := uuid.New()

	_, err := Toggle(context.Background(), m, blog, uuid.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "test_likes toggle")
	_, stored := m.counters[blog]
	assert.False(t, stored, "counter must not be written after a failed toggle")
}

func TestToggleRecordsSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		_ = tp.Shutdown(context.Background())
	})

	_, err := Toggle(context.Background(), newMemSet(), uuid.New(), uuid.New())
	require.NoError(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "ledger.toggle", spans[0].Name())
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range spans[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "test_likes", attrs["ledger.relation"].AsString())
	assert.True(t, attrs["ledger.present"].AsBool())
	assert.Equal(t, int64(1), attrs["ledger.count"].AsInt64())
}
