// seed inserts development users for local testing.
// Idempotent: users that already exist are skipped.
package main

import (
	"context"
	"errors"
	"log"

	"authcore/internal/config"
	"authcore/internal/db"
	"authcore/internal/security"
	"authcore/internal/user/domain"
	userrepo "authcore/internal/user/repository"
)

const devPassword = "password123"

var devUsers = []domain.User{
	{Email: "admin@example.com", Name: "Dev Admin", Role: domain.RoleAdmin},
	{Email: "manager@example.com", Name: "Dev Manager", Role: domain.RoleManager},
	{Email: "dev@example.com", Name: "Dev User", Role: domain.RoleClient},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	hasher := security.NewHasher(cfg.BcryptCost)
	passwordHash, err := hasher.Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	users := userrepo.NewPostgresRepository(conn)
	ctx := context.Background()
	for _, u := range devUsers {
		u.PasswordHash, u.Active = passwordHash, true
		if err := users.Create(ctx, &u); err != nil {
			if errors.Is(err, userrepo.ErrEmailTaken) {
				log.Printf("%s already exists, skipping", u.Email)
				continue
			}
			log.Fatalf("create %s: %v", u.Email, err)
		}
		log.Printf("created %s (%s) id=%d", u.Email, u.Role, u.ID)
	}
	log.Printf("seed done; password for all users: %s", devPassword)
}
