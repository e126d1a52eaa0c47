// Command seed populates the database with demo users, apps and conversations.
package main

import (
	"context"
	"flag"
	"log"

	"appforge/internal/config"
	"appforge/internal/database"
	"appforge/internal/security"
	"appforge/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 20, "Number of regular users to create")
	appsPerUser := flag.Int("apps", 3, "Apps per user")
	messages := flag.Int("messages", 6, "Chat messages per app")
	featuredEvery := flag.Int("featured-every", 5, "Mark every n-th app as featured (0 disables)")
	shouldClean := flag.Bool("clean", false, "Remove existing rows before seeding")
	randSeed := flag.Int64("seed", 0, "Random seed for reproducible content (0 = time based)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("Refusing to seed a production database")
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = database.Close() }()

	s := seed.NewSeeder(db, security.NewCredentials(security.BcryptHasher{}), *randSeed)
	if *shouldClean {
		if err := s.ClearAll(); err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
	}

	res, err := s.Seed(context.Background(), seed.Options{
		NumUsers:       *numUsers,
		AppsPerUser:    *appsPerUser,
		MessagesPerApp: *messages,
		FeaturedEvery:  *featuredEvery,
	})
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Printf("Seeded %d users, %d apps, %d messages", len(res.Users), len(res.Apps), res.Messages)
	log.Printf("All seeded accounts use the password %q; the admin account is %q", seed.DefaultPassword, seed.AdminAccount)
}
