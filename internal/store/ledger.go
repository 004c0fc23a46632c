package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"ajeyam/internal/ledger"
)

// Relation describes a membership table: one row per (owner, member) pair,
// with an optional denormalized counter on the owner's row.
type Relation struct {
	name         string
	table        string
	ownerCol     string
	memberCol    string
	counterTable string
	counterCol   string
}

// The four relations of the social ledger. Likes are owned by the liked
// entity so its counter can be recomputed; saves and follows are owned by
// the acting user and carry no counter.
var (
	BlogLikes = Relation{
		name: "blog_likes", table: "blog_likes", ownerCol: "blog_id", memberCol: "user_id",
		counterTable: "blogs", counterCol: "likes_count",
	}
	CommentLikes = Relation{
		name: "comment_likes", table: "comment_likes", ownerCol: "comment_id", memberCol: "user_id",
		counterTable: "comments", counterCol: "likes_count",
	}
	SavedBlogs = Relation{
		name: "saved_blogs", table: "user_saved_blogs", ownerCol: "user_id", memberCol: "blog_id",
	}
	Follows = Relation{
		name: "follows", table: "user_follows", ownerCol: "follower_id", memberCol: "followee_id",
	}
)

// Name returns the relation name used in logs and metrics.
func (r Relation) Name() string { return r.name }

// txMembership implements ledger.Membership inside one transaction.
type txMembership struct {
	tx  *sql.Tx
	rel Relation
}

func (m txMembership) Name() string { return m.rel.name }

func (m txMembership) Contains(ctx context.Context, owner, member uuid.UUID) (bool, error) {
	var ok bool
	q := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1 AND %s = $2)`,
		m.rel.table, m.rel.ownerCol, m.rel.memberCol)
	if err := m.tx.QueryRowContext(ctx, q, owner, member).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (m txMembership) Add(ctx context.Context, owner, member uuid.UUID) error {
	q := fmt.Sprintf(`INSERT INTO %s (%s, %s) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		m.rel.table, m.rel.ownerCol, m.rel.memberCol)
	_, err := m.tx.ExecContext(ctx, q, owner, member)
	return err
}

func (m txMembership) Remove(ctx context.Context, owner, member uuid.UUID) error {
	q := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1 AND %s = $2`,
		m.rel.table, m.rel.ownerCol, m.rel.memberCol)
	_, err := m.tx.ExecContext(ctx, q, owner, member)
	return err
}

func (m txMembership) Count(ctx context.Context, owner uuid.UUID) (int, error) {
	var n int
	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = $1`, m.rel.table, m.rel.ownerCol)
	if err := m.tx.QueryRowContext(ctx, q, owner).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (m txMembership) SetCount(ctx context.Context, owner uuid.UUID, n int) error {
	if m.rel.counterTable == "" {
		return nil
	}
	q := fmt.Sprintf(`UPDATE %s SET %s = $1 WHERE id = $2`, m.rel.counterTable, m.rel.counterCol)
	_, err := m.tx.ExecContext(ctx, q, n, owner)
	return err
}

// LedgerStore runs membership toggles against PostgreSQL.
type LedgerStore struct {
	db *sql.DB
}

// NewLedgerStore returns a new LedgerStore.
func NewLedgerStore(db *sql.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// Toggle flips member in or out of owner's set and persists the recount in
// the same transaction. For counted relations the owner row is locked first
// so concurrent toggles on one entity serialize.
func (s *LedgerStore) Toggle(ctx context.Context, rel Relation, owner, member uuid.UUID) (ledger.Outcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Outcome{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if rel.counterTable != "" {
		q := fmt.Sprintf(`SELECT 1 FROM %s WHERE id = $1 FOR UPDATE`, rel.counterTable)
		if _, err := tx.ExecContext(ctx, q, owner); err != nil {
			return ledger.Outcome{}, fmt.Errorf("lock %s: %w", rel.counterTable, err)
		}
	}

	out, err := ledger.Toggle(ctx, txMembership{tx: tx, rel: rel}, owner, member)
	if err != nil {
		return ledger.Outcome{}, err
	}
	if err := tx.Commit(); err != nil {
		return ledger.Outcome{}, fmt.Errorf("commit %s toggle: %w", rel.name, err)
	}
	return out, nil
}

// Contains reports whether member is in owner's set.
func (s *LedgerStore) Contains(ctx context.Context, rel Relation, owner, member uuid.UUID) (bool, error) {
	var ok bool
	q := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1 AND %s = $2)`,
		rel.table, rel.ownerCol, rel.memberCol)
	if err := s.db.QueryRowContext(ctx, q, owner, member).Scan(&ok); err != nil {
		return false, fmt.Errorf("%s contains: %w", rel.name, err)
	}
	return ok, nil
}

// Members returns the member ids of owner's set, oldest first.
func (s *LedgerStore) Members(ctx context.Context, rel Relation, owner uuid.UUID) ([]uuid.UUID, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 ORDER BY created_at`,
		rel.memberCol, rel.table, rel.ownerCol)
	rows, err := s.db.QueryContext(ctx, q, owner)
	if err != nil {
		return nil, fmt.Errorf("%s members: %w", rel.name, err)
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s member: %w", rel.name, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
