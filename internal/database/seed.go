package database

import (
	"database/sql"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"ajeyam/internal/models"
	"ajeyam/internal/slug"
)

// bcryptCost matches the cost used for registered users.
const bcryptCost = 12

// seedCategory is a default top-level category with its subcategories.
type seedCategory struct {
	name        string
	description string
	children    []seedCategory
}

var defaultCategories = []seedCategory{
	{
		name:        "Ancient India",
		description: "From the Indus Valley to the Gupta age.",
		children: []seedCategory{
			{name: "Indus Valley", description: "Harappa, Mohenjo-daro and the Bronze Age cities."},
			{name: "Maurya Empire", description: "Chandragupta, Ashoka and the first pan-Indian state."},
		},
	},
	{
		name:        "Medieval India",
		description: "Kingdoms, sultanates and empires from the 7th to the 18th century.",
		children: []seedCategory{
			{name: "Vijayanagara", description: "The southern empire and its capital at Hampi."},
			{name: "Maratha Empire", description: "Shivaji and the Maratha confederacy."},
		},
	},
	{
		name:        "Modern India",
		description: "Colonial rule, the freedom struggle and the republic.",
	},
	{
		name:        "Art & Culture",
		description: "Temples, literature, music and the living traditions of India.",
	},
}

// Seed populates the database with initial development data. It creates
// the administrator when no users exist and the default categories when
// none exist. Safe to call on every start.
func Seed(db *sql.DB, adminEmail, adminPassword string) error {
	if err := seedAdmin(db, adminEmail, adminPassword); err != nil {
		return err
	}
	return seedCategories(db)
}

func seedAdmin(db *sql.DB, email, password string) error {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return fmt.Errorf("seed check users: %w", err)
	}
	if count > 0 {
		slog.Info("users already seeded, skipping")
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return fmt.Errorf("seed bcrypt: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO users (name, email, password_hash, role, avatar, email_verified)
		VALUES ($1, $2, $3, 'admin', $4, TRUE)
	`, "Admin", email, string(hash), models.DefaultAvatar("Admin"))
	if err != nil {
		return fmt.Errorf("seed insert admin: %w", err)
	}

	slog.Info("database seeded with default admin user", "email", email)
	return nil
}

func seedCategories(db *sql.DB) error {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM categories").Scan(&count); err != nil {
		return fmt.Errorf("seed check categories: %w", err)
	}
	if count > 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	insert := func(c seedCategory, parentID *string, order int) (string, error) {
		var id string
		err := tx.QueryRow(`
			INSERT INTO categories (name, slug, description, parent_id, sort_order)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`, c.name, slug.Generate(c.name), c.description, parentID, order).Scan(&id)
		if err != nil {
			return "", fmt.Errorf("seed category %q: %w", c.name, err)
		}
		return id, nil
	}

	for i, top := range defaultCategories {
		id, err := insert(top, nil, i)
		if err != nil {
			return err
		}
		for j, child := range top.children {
			if _, err := insert(child, &id, j); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed categories: %w", err)
	}
	slog.Info("database seeded with default categories", "count", len(defaultCategories))
	return nil
}
