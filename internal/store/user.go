package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"ajeyam/internal/models"
)

// passwordCost is the bcrypt work factor for stored password hashes.
const passwordCost = 12

// UserStore handles all user-related database operations.
type UserStore struct {
	db *sql.DB
}

// NewUserStore creates a new UserStore with the given database connection.
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

const userColumns = `u.id, u.name, u.email, u.password_hash, u.role, u.avatar, u.bio,
	u.active, u.email_verified, u.password_changed_at, u.totp_secret, u.totp_enabled,
	u.created_at, u.updated_at`

func scanUser(scanner interface{ Scan(...any) error }) (*models.User, error) {
	var u models.User
	err := scanner.Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.Avatar, &u.Bio,
		&u.Active, &u.EmailVerified, &u.PasswordChangedAt, &u.TOTPSecret, &u.TOTPEnabled,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// findOne runs a single-user query. Returns nil if no row matches.
func (s *UserStore) findOne(ctx context.Context, op, where string, args ...any) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users u WHERE `+where, args...)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// FindByID retrieves a user by ID. Returns nil if not found or filtered out.
func (s *UserStore) FindByID(ctx context.Context, id uuid.UUID, f UserFilter) (*models.User, error) {
	return s.findOne(ctx, "find user by id", `u.id = $1 AND `+f.clause("u"), id)
}

// FindByEmail retrieves a user by email. The address is normalised first.
func (s *UserStore) FindByEmail(ctx context.Context, email string, f UserFilter) (*models.User, error) {
	return s.findOne(ctx, "find user by email", `u.email = $1 AND `+f.clause("u"), NormalizeEmail(email))
}

// FindByVerifyToken returns the user holding an unexpired email
// verification token hash.
func (s *UserStore) FindByVerifyToken(ctx context.Context, tokenHash string) (*models.User, error) {
	return s.findOne(ctx, "find user by verify token",
		`u.email_verify_token = $1 AND u.email_verify_expires > NOW()`, tokenHash)
}

// FindByResetToken returns the active user holding an unexpired password
// reset token hash.
func (s *UserStore) FindByResetToken(ctx context.Context, tokenHash string) (*models.User, error) {
	return s.findOne(ctx, "find user by reset token",
		`u.password_reset_token = $1 AND u.password_reset_expires > NOW() AND u.active`, tokenHash)
}

// List returns a page of users, newest first, and the total match count.
func (s *UserStore) List(ctx context.Context, f UserFilter, p Page) ([]models.User, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users u WHERE `+f.clause("u"),
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+` FROM users u
		WHERE `+f.clause("u")+`
		ORDER BY u.created_at DESC
		LIMIT $1 OFFSET $2
	`, p.Limit, p.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users, err := collectUsers(rows)
	return users, total, err
}

// Following returns the users that userID follows, filtered by f.
func (s *UserStore) Following(ctx context.Context, userID uuid.UUID, f UserFilter) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM user_follows uf
		JOIN users u ON u.id = uf.followee_id
		WHERE uf.follower_id = $1 AND `+f.clause("u")+`
		ORDER BY uf.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list following: %w", err)
	}
	defer rows.Close()
	return collectUsers(rows)
}

func collectUsers(rows *sql.Rows) ([]models.User, error) {
	users := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// NewUser holds the registration fields.
type NewUser struct {
	Name     string
	Email    string
	Password string
	Role     models.Role
}

// Create inserts a new user with a bcrypt-hashed password. A taken email
// returns a ConflictError.
func (s *UserStore) Create(ctx context.Context, n NewUser) (*models.User, error) {
	hash, err := HashPassword(n.Password)
	if err != nil {
		return nil, err
	}
	role := n.Role
	if role == "" {
		role = models.RoleUser
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO users AS u (name, email, password_hash, role, avatar)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+userColumns,
		strings.TrimSpace(n.Name), NormalizeEmail(n.Email), hash, string(role),
		models.DefaultAvatar(strings.TrimSpace(n.Name)),
	)
	u, err := scanUser(row)
	if err != nil {
		return nil, conflictOr(err, "create user", "Email already in use. Please use a different email or login.")
	}
	return u, nil
}

// ProfileUpdate carries optional profile fields; nil leaves a field as is.
type ProfileUpdate struct {
	Name   *string
	Email  *string
	Bio    *string
	Avatar *string
	Role   *models.Role
	Active *bool
}

// Update applies the non-nil fields of p and returns the updated user.
// Returns nil if the user does not exist.
func (s *UserStore) Update(ctx context.Context, id uuid.UUID, p ProfileUpdate) (*models.User, error) {
	q := psql.Update("users").Set("updated_at", sq.Expr("NOW()")).Where(sq.Eq{"id": id})
	if p.Name != nil {
		q = q.Set("name", strings.TrimSpace(*p.Name))
	}
	if p.Email != nil {
		q = q.Set("email", NormalizeEmail(*p.Email))
	}
	if p.Bio != nil {
		q = q.Set("bio", strings.TrimSpace(*p.Bio))
	}
	if p.Avatar != nil {
		q = q.Set("avatar", strings.TrimSpace(*p.Avatar))
	}
	if p.Role != nil {
		q = q.Set("role", string(*p.Role))
	}
	if p.Active != nil {
		q = q.Set("active", *p.Active)
	}

	query, args, err := q.Suffix(`RETURNING ` + strings.ReplaceAll(userColumns, "u.", "")).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build user update: %w", err)
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, conflictOr(err, "update user", "Email already in use. Please use a different email.")
	}
	return u, nil
}

// SetActive flips the active flag.
func (s *UserStore) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET active = $1, updated_at = NOW() WHERE id = $2
	`, active, id)
	if err != nil {
		return fmt.Errorf("set user active: %w", err)
	}
	return nil
}

// SetPassword stores a new password hash, stamps password_changed_at and
// clears any outstanding reset token.
func (s *UserStore) SetPassword(ctx context.Context, id uuid.UUID, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	// Stamped one second early so a token issued right after the change
	// is not treated as stale.
	_, err = s.db.ExecContext(ctx, `
		UPDATE users SET
			password_hash = $1,
			password_changed_at = NOW() - INTERVAL '1 second',
			password_reset_token = NULL,
			password_reset_expires = NULL,
			updated_at = NOW()
		WHERE id = $2
	`, hash, id)
	if err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	return nil
}

// SetVerifyToken stores an email verification token hash and its expiry.
func (s *UserStore) SetVerifyToken(ctx context.Context, id uuid.UUID, tokenHash string, expires time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET email_verify_token = $1, email_verify_expires = $2 WHERE id = $3
	`, tokenHash, expires, id)
	if err != nil {
		return fmt.Errorf("set verify token: %w", err)
	}
	return nil
}

// MarkEmailVerified sets email_verified and clears the verification token.
func (s *UserStore) MarkEmailVerified(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET
			email_verified = TRUE,
			email_verify_token = NULL,
			email_verify_expires = NULL,
			updated_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("mark email verified: %w", err)
	}
	return nil
}

// SetResetToken stores a password reset token hash and its expiry.
func (s *UserStore) SetResetToken(ctx context.Context, id uuid.UUID, tokenHash string, expires time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_reset_token = $1, password_reset_expires = $2 WHERE id = $3
	`, tokenHash, expires, id)
	if err != nil {
		return fmt.Errorf("set reset token: %w", err)
	}
	return nil
}

// ClearResetToken removes any outstanding reset token.
func (s *UserStore) ClearResetToken(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_reset_token = NULL, password_reset_expires = NULL WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("clear reset token: %w", err)
	}
	return nil
}

// SetTOTPSecret saves the TOTP secret for a user (during 2FA setup).
func (s *UserStore) SetTOTPSecret(ctx context.Context, userID uuid.UUID, secret string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET totp_secret = $1, updated_at = NOW() WHERE id = $2
	`, secret, userID)
	if err != nil {
		return fmt.Errorf("set totp secret: %w", err)
	}
	return nil
}

// EnableTOTP marks 2FA as active for a user (after successful code verification).
func (s *UserStore) EnableTOTP(ctx context.Context, userID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET totp_enabled = TRUE, updated_at = NOW() WHERE id = $1
	`, userID)
	if err != nil {
		return fmt.Errorf("enable totp: %w", err)
	}
	return nil
}

// ResetTOTP clears the TOTP secret and disables 2FA for a user.
func (s *UserStore) ResetTOTP(ctx context.Context, userID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET totp_secret = NULL, totp_enabled = FALSE, updated_at = NOW() WHERE id = $1
	`, userID)
	if err != nil {
		return fmt.Errorf("reset totp: %w", err)
	}
	return nil
}

// Delete removes a user by ID.
func (s *UserStore) Delete(ctx context.Context, userID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// CheckPassword verifies a plaintext password against the user's stored hash.
func (s *UserStore) CheckPassword(user *models.User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
