package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"markdown-annotator/internal/domain"

	"gorm.io/gorm"
)

// Migrate runs database migrations
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&domain.User{},
		&domain.Document{},
		&domain.DocumentVersion{},
		&domain.Annotation{},
		&domain.AnnotationComment{},
		&domain.Share{},
	)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	slog.Info("database schema migrated successfully")
	return nil
}

// UserRegistrar creates accounts for seeding.
type UserRegistrar interface {
	Register(ctx context.Context, user *domain.User) error
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
}

// DocumentCreator creates documents for seeding.
type DocumentCreator interface {
	CreateDocument(ctx context.Context, owner *domain.User, title, markdown string) (*domain.Document, error)
}

const sampleMarkdown = `# Euler–Lagrange

For a functional $J[y] = \int_a^b L(x, y, y')\,dx$ the stationarity condition is

$$\frac{\partial L}{\partial y} - \frac{d}{dx}\frac{\partial L}{\partial y'} = 0.$$

Select any passage of this text to annotate it.
`

// SeedData seeds the database with initial data (for development only)
func SeedData(ctx context.Context, users UserRegistrar, docs DocumentCreator) error {
	alice, err := users.FindByUsername(ctx, "alice")
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if alice != nil {
		slog.Info("seed user already exists", "username", alice.Username)
		return nil
	}

	alice = &domain.User{Username: "alice", Password: "password123"}
	if err := users.Register(ctx, alice); err != nil {
		return fmt.Errorf("seed user: %w", err)
	}

	doc, err := docs.CreateDocument(ctx, alice, "Sample Doc", sampleMarkdown)
	if err != nil {
		return fmt.Errorf("seed document: %w", err)
	}

	slog.Info("seeded sample data", "username", alice.Username, "document_id", doc.ID)
	return nil
}
