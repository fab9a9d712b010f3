package main

import (
	"context"
	"fmt"
	"log"

	"shelfmate/internal/audit"
	"shelfmate/internal/auth"
	"shelfmate/internal/shared/config"
	"shelfmate/internal/shared/constants"
	"shelfmate/internal/shared/database"
	"shelfmate/internal/tokens"

	"github.com/joho/godotenv"
)

type Seeder struct {
	db      *database.DB
	service auth.Service
}

func main() {
	fmt.Println("🌱 Starting shelfmate database seeder...")

	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize database
	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	tokenService, err := tokens.NewService(cfg.JWT)
	if err != nil {
		log.Fatalf("Failed to initialize token service: %v", err)
	}

	seeder := &Seeder{
		db:      db,
		service: auth.NewService(auth.NewRepository(db.PostgreSQL), tokenService, audit.Noop{}),
	}

	// Clean database
	fmt.Println("\n🧹 Cleaning database...")
	if err := seeder.CleanDatabase(); err != nil {
		log.Fatalf("Failed to clean database: %v", err)
	}
	fmt.Println("✅ Database cleaned successfully")

	// Seed data
	fmt.Println("\n🌱 Seeding database...")
	if err := seeder.SeedAll(context.Background()); err != nil {
		log.Fatalf("Failed to seed database: %v", err)
	}
	fmt.Println("✅ Database seeded successfully")

	fmt.Println("\n🎉 Seeding completed! Demo accounts use the password \"secret1\".")
}

// CleanDatabase empties the users table and drops OAuth state and rate limit keys
func (s *Seeder) CleanDatabase() error {
	fmt.Println("  Truncating table: users")
	if err := s.db.PostgreSQL.Exec("TRUNCATE TABLE users RESTART IDENTITY CASCADE").Error; err != nil {
		return fmt.Errorf("failed to truncate table users: %w", err)
	}

	ctx := context.Background()
	iter := s.db.Redis.Scan(ctx, 0, constants.CACHE_PREFIX+":*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.db.Redis.Del(ctx, iter.Val()).Err(); err != nil {
			log.Printf("Warning: failed to delete %s: %v", iter.Val(), err)
		}
	}
	return iter.Err()
}

// SeedAll registers the demo accounts through the auth service so they get
// the same hashing and session handling as real sign-ups.
func (s *Seeder) SeedAll(ctx context.Context) error {
	fmt.Println("  👤 Seeding users...")

	usersData := []struct {
		username string
		email    string
	}{
		{"alice", "alice@shelfmate.dev"},
		{"bookworm", "bookworm@shelfmate.dev"},
		{"margins", "margins@shelfmate.dev"},
	}

	for _, userData := range usersData {
		resp, err := s.service.Register(ctx, &auth.RegisterRequest{
			Username: userData.username,
			Email:    userData.email,
			Password: "secret1",
		})
		if err != nil {
			return fmt.Errorf("failed to create user %s: %w", userData.email, err)
		}
		fmt.Printf("    ✅ Created user: %s (%s)\n", resp.User.Email, resp.User.ID)
	}

	return nil
}
