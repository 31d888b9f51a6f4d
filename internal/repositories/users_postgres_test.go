package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/teetime/backend/internal/models"
)

func TestPostgresUserRepository(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresUserRepository(testPool)
	alice := createTestUser(t, repo, "alice@example.com")

	t.Run("duplicate email", func(t *testing.T) {
		dup := models.User{ID: uuid.NewString(), Email: "ALICE@example.com", Password: "hash", CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
		if err := repo.Create(ctx, dup); !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict got %v", err)
		}
	})

	t.Run("find by email ignores case", func(t *testing.T) {
		found, err := repo.FindByEmail(ctx, "Alice@Example.com")
		if err != nil {
			t.Fatalf("find by email: %v", err)
		}
		if found.ID != alice.ID || found.Handle != "alice" {
			t.Fatalf("expected alice got %+v", found)
		}
	})

	t.Run("find by id", func(t *testing.T) {
		if _, err := repo.FindByID(ctx, alice.ID); err != nil {
			t.Fatalf("find by id: %v", err)
		}
		if _, err := repo.FindByID(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound got %v", err)
		}
	})

	t.Run("update", func(t *testing.T) {
		updated := alice
		updated.Email = "alice.green@example.com"
		updated.Handle = "alice_green"
		updated.UpdatedAt = time.Now().UTC().Add(time.Minute)
		if err := repo.Update(ctx, updated); err != nil {
			t.Fatalf("update user: %v", err)
		}

		found, err := repo.FindByEmail(ctx, updated.Email)
		if err != nil {
			t.Fatalf("find by updated email: %v", err)
		}
		if found.Handle != "alice_green" {
			t.Fatalf("expected updated handle got %q", found.Handle)
		}
	})

	t.Run("update unknown user", func(t *testing.T) {
		missing := models.User{ID: uuid.NewString(), Email: "ghost@example.com", UpdatedAt: time.Now().UTC()}
		if err := repo.Update(ctx, missing); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound got %v", err)
		}
	})
}
