// store_test.go provides a shared test database helper for all store
// integration tests. Tests are skipped if PostgreSQL is not available.
package store

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"ajeyam/internal/database"
	"ajeyam/internal/models"
	"ajeyam/internal/slug"
)

// testDSN returns the PostgreSQL connection string for testing.
// Uses environment variables with defaults matching docker-compose.yml.
func testDSN() string {
	host := envOr("POSTGRES_HOST", "localhost")
	port := envOr("POSTGRES_PORT", "5432")
	user := envOr("POSTGRES_USER", "ajeyam")
	pass := envOr("POSTGRES_PASSWORD", "changeme")
	name := envOr("POSTGRES_DB", "ajeyam")
	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=disable"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// testDB opens a connection to the test database and runs migrations.
// If the database is unavailable, the test is skipped. A cleanup
// function is registered to close the connection when the test finishes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := testDSN()
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Skipf("skipping integration test: cannot open DB: %v", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("skipping integration test: DB not reachable: %v", err)
	}

	// Run migrations to ensure the schema is current.
	if err := database.Migrate(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	// Downgrade goose global state.
	goose.SetBaseFS(nil)

	t.Cleanup(func() { db.Close() })
	return db
}

// testEmail returns an address unique to this test run.
func testEmail(t *testing.T) string {
	t.Helper()
	name := strings.ToLower(strings.NewReplacer("/", "-", " ", "-").Replace(t.Name()))
	return name + "-" + uuid.NewString()[:8] + "@store-test.local"
}

// createUser registers a throwaway user and removes it, together with
// everything it wrote, when the test ends.
func createUser(t *testing.T, db *sql.DB, role models.Role) *models.User {
	t.Helper()
	u, err := NewUserStore(db).Create(context.Background(), NewUser{
		Name:     "Store Tester",
		Email:    testEmail(t),
		Password: "testpass123",
		Role:     role,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	t.Cleanup(func() { cleanUsers(t, db, u.ID) })
	return u
}

// createCategory inserts a throwaway top-level category.
func createCategory(t *testing.T, db *sql.DB) *models.Category {
	t.Helper()
	name := "Test " + uuid.NewString()[:8]
	c, err := NewCategoryStore(db).Create(context.Background(), &models.Category{
		Name:        name,
		Slug:        slug.Generate(name),
		Description: "Category created by a store test.",
		IsActive:    true,
	})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	t.Cleanup(func() { db.Exec("DELETE FROM categories WHERE id = $1", c.ID) })
	return c
}

// createBlog inserts a blog with the given status.
func createBlog(t *testing.T, db *sql.DB, author *models.User, cat *models.Category, status models.Status) *models.Blog {
	t.Helper()
	title := "A test blog about the Maurya court"
	b := &models.Blog{
		Title:      title,
		Slug:       slug.Unique(title, time.Now()) + "-" + uuid.NewString()[:4],
		Summary:    strings.Repeat("summary ", 8),
		Content:    strings.Repeat("content ", 80),
		CoverImage: "https://example.com/cover.jpg",
		CategoryID: cat.ID,
		Tags:       []string{"maurya", "ashoka"},
		ReadTime:   1,
		AuthorID:   author.ID,
	}
	b.Status = status
	if status == models.StatusPublished {
		now := time.Now()
		b.PublishedAt = &now
	}
	if status == models.StatusRejected {
		reason := "Needs sources"
		b.RejectionReason = &reason
	}
	created, err := NewBlogStore(db).Create(context.Background(), b)
	if err != nil {
		t.Fatalf("create blog: %v", err)
	}
	t.Cleanup(func() { cleanBlogs(t, db, created.ID) })
	return created
}

// cleanUsers removes test users and the blogs they authored. Call in t.Cleanup().
func cleanUsers(t *testing.T, db *sql.DB, ids ...uuid.UUID) {
	t.Helper()
	for _, id := range ids {
		db.Exec("DELETE FROM comments WHERE blog_id IN (SELECT id FROM blogs WHERE author_id = $1)", id)
		db.Exec("DELETE FROM blogs WHERE author_id = $1", id)
		db.Exec("DELETE FROM users WHERE id = $1", id)
	}
}

// cleanBlogs removes test blogs and their comments. Call in t.Cleanup().
func cleanBlogs(t *testing.T, db *sql.DB, ids ...uuid.UUID) {
	t.Helper()
	for _, id := range ids {
		db.Exec("DELETE FROM comments WHERE blog_id = $1", id)
		db.Exec("DELETE FROM blogs WHERE id = $1", id)
	}
}
