// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// handler_test.go provides shared test infrastructure for handler integration
// tests. Tests are skipped when PostgreSQL or Valkey are unavailable.
package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"

	"ajeyam/internal/cache"
	"ajeyam/internal/config"
	"ajeyam/internal/database"
	"ajeyam/internal/mail"
	"ajeyam/internal/middleware"
	"ajeyam/internal/models"
	"ajeyam/internal/session"
	"ajeyam/internal/slug"
	"ajeyam/internal/store"
	"ajeyam/internal/token"
)

const testCachePrefix = "handlers-test"

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// testDB opens a connection to the test PostgreSQL and runs migrations.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	host := envOr("POSTGRES_HOST", "localhost")
	port := envOr("POSTGRES_PORT", "5432")
	user := envOr("POSTGRES_USER", "ajeyam")
	pass := envOr("POSTGRES_PASSWORD", "changeme")
	name := envOr("POSTGRES_DB", "ajeyam")
	dsn := "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=disable"

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Skipf("skipping: cannot open DB: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("skipping: DB not reachable: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		db.Close()
		t.Fatalf("migrate: %v", err)
	}
	goose.SetBaseFS(nil)

	t.Cleanup(func() { db.Close() })
	return db
}

// testValkeyClient returns a Redis client for handler tests on DB 15.
func testValkeyClient(t *testing.T) *redis.Client {
	t.Helper()

	host := envOr("VALKEY_HOST", "localhost")
	port := envOr("VALKEY_PORT", "6379")
	password := os.Getenv("VALKEY_PASSWORD")

	client := redis.NewClient(&redis.Options{
		Addr:     host + ":" + port,
		Password: password,
		DB:       15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("skipping: Valkey not reachable: %v", err)
	}

	t.Cleanup(func() {
		// Clean up test session and cache keys.
		for _, pattern := range []string{"session:*", "user_sessions:*", testCachePrefix + ":*"} {
			keys, _ := client.Keys(ctx, pattern).Result()
			if len(keys) > 0 {
				client.Del(ctx, keys...)
			}
		}
		client.Close()
	})

	return client
}

// testEnv holds all dependencies for handler integration tests.
type testEnv struct {
	DB         *sql.DB
	Valkey     *redis.Client
	SessionDB  *session.Store
	Issuer     *token.Issuer
	UserStore  *store.UserStore
	BlogStore  *store.BlogStore
	Categories *Categories
	Auth       *Auth
	Blogs      *Blogs
	Comments   *Comments
	Reviews    *Reviews
	Users      *Users
	Moderation *Moderation
}

// newTestEnv creates a complete test environment with all handler
// dependencies. The policy switches are all off so their guards run.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testDB(t)
	vk := testValkeyClient(t)

	sessionStore := session.NewStore(vk, time.Hour)
	issuer := token.NewIssuer("handler-test-secret", time.Hour)
	sessions := NewSessions(sessionStore, issuer)
	mailer := mail.NewSender("", 0, "", "", "noreply@ajeyam.local")
	policy := config.Policy{}

	userStore := store.NewUserStore(db)
	blogStore := store.NewBlogStore(db)
	categoryStore := store.NewCategoryStore(db)
	commentStore := store.NewCommentStore(db)
	reviewStore := store.NewReviewStore(db)
	ledger := store.NewLedgerStore(db)
	modLog := store.NewModerationLogStore(db)
	responses := cache.NewResponseCache(vk, testCachePrefix, time.Minute)

	return &testEnv{
		DB:         db,
		Valkey:     vk,
		SessionDB:  sessionStore,
		Issuer:     issuer,
		UserStore:  userStore,
		BlogStore:  blogStore,
		Categories: NewCategories(categoryStore, blogStore, responses),
		Auth:       NewAuth(userStore, sessions, mailer, "http://localhost:3000", policy),
		Blogs:      NewBlogs(blogStore, categoryStore, ledger, modLog),
		Comments:   NewComments(commentStore, blogStore, ledger),
		Reviews:    NewReviews(reviewStore, modLog),
		Users:      NewUsers(userStore, blogStore, ledger, sessions, policy),
		Moderation: NewModeration(modLog),
	}
}

// newRequest builds a request carrying a JSON body, chi URL params and,
// when user is set, an authenticated user.
func newRequest(method, target string, body any, user *models.User, params map[string]string) *http.Request {
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		raw, _ := json.Marshal(b)
		rd = bytes.NewReader(raw)
	}
	r := httptest.NewRequest(method, target, rd)
	r.Header.Set("Content-Type", "application/json")

	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	if user != nil {
		ctx = middleware.WithUser(ctx, user, &token.Claims{})
	}
	return r.WithContext(ctx)
}

// decodeBody decodes a JSON response envelope.
func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return body
}

// dataOf returns the data object of a success envelope.
func dataOf(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	data, ok := decodeBody(t, rec)["data"].(map[string]any)
	if !ok {
		t.Fatalf("no data object in %s", rec.Body.String())
	}
	return data
}

// testEmail returns an address unique to this test run.
func testEmail(t *testing.T) string {
	t.Helper()
	name := strings.ToLower(strings.NewReplacer("/", "-", " ", "-").Replace(t.Name()))
	return name + "-" + uuid.NewString()[:8] + "@handler-test.local"
}

// createUser registers a throwaway user and removes it, together with
// everything it wrote, when the test ends.
func createUser(t *testing.T, db *sql.DB, role models.Role) *models.User {
	t.Helper()
	u, err := store.NewUserStore(db).Create(context.Background(), store.NewUser{
		Name:     "Handler Tester",
		Email:    testEmail(t),
		Password: "testpass123",
		Role:     role,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	t.Cleanup(func() { cleanUser(db, u.ID) })
	return u
}

func cleanUser(db *sql.DB, id uuid.UUID) {
	db.Exec("DELETE FROM comments WHERE blog_id IN (SELECT id FROM blogs WHERE author_id = $1)", id)
	db.Exec("DELETE FROM blogs WHERE author_id = $1", id)
	db.Exec("DELETE FROM users WHERE id = $1", id)
}

// createCategory inserts a throwaway top-level category. Its blogs are
// removed with it.
func createCategory(t *testing.T, db *sql.DB) *models.Category {
	t.Helper()
	name := "Test " + uuid.NewString()[:8]
	c, err := store.NewCategoryStore(db).Create(context.Background(), &models.Category{
		Name:        name,
		Slug:        slug.Generate(name),
		Description: "Category created by a handler test.",
		IsActive:    true,
	})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	t.Cleanup(func() { cleanCategory(db, c.ID) })
	return c
}

func cleanCategory(db *sql.DB, id uuid.UUID) {
	db.Exec("DELETE FROM comments WHERE blog_id IN (SELECT id FROM blogs WHERE category_id = $1)", id)
	db.Exec("DELETE FROM blogs WHERE category_id = $1", id)
	db.Exec("DELETE FROM categories WHERE parent_id = $1", id)
	db.Exec("DELETE FROM categories WHERE id = $1", id)
}

// validBlog returns a create request body that passes validation.
func validBlog(category *models.Category) map[string]any {
	return map[string]any{
		"title":      "The Chola navy and the Srivijaya raid",
		"summary":    strings.Repeat("A summary of the raid. ", 4),
		"content":    strings.Repeat("Rajendra Chola sailed east. ", 40),
		"coverImage": "https://example.com/chola.jpg",
		"category":   category.ID.String(),
		"tags":       []string{"Chola", "navy"},
	}
}

// createBlog stores a blog through the Create handler as author and
// returns its id.
func createBlog(t *testing.T, env *testEnv, author *models.User, category *models.Category) uuid.UUID {
	t.Helper()
	rec := httptest.NewRecorder()
	env.Blogs.Create(rec, newRequest("POST", "/api/v1/blogs", validBlog(category), author, nil))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create blog: status %d: %s", rec.Code, rec.Body.String())
	}
	blog := dataOf(t, rec)["blog"].(map[string]any)
	id, err := uuid.Parse(blog["id"].(string))
	if err != nil {
		t.Fatalf("blog id: %v", err)
	}
	return id
}
