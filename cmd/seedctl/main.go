// Command seedctl provisions user accounts directly against the credential
// store. It is the operator-side path for creating the first admin account,
// before any user exists that could authorize a registration call.
//
// Usage:
//
//	DATABASE_URL=postgres://... seedctl -id 9999 -role admin
//
// The password is read from the terminal without echo.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/term"

	"github.com/pontoweb/auth-service/config"
	database "github.com/pontoweb/auth-service/internal/core"
	"github.com/pontoweb/auth-service/internal/core/domain"
	"github.com/pontoweb/auth-service/internal/core/repository"
	"github.com/pontoweb/auth-service/internal/password"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "seedctl:", err)
		os.Exit(1)
	}
}

func run() error {
	id := flag.String("id", "", "numeric-string user id (required)")
	role := flag.String("role", string(domain.RoleSupervisor), "role: admin or supervisor")
	createdBy := flag.String("created-by", "", "id of the provisioning account (defaults to the new id)")
	flag.Parse()

	if *id == "" {
		return fmt.Errorf("-id is required")
	}
	r := domain.Role(*role)
	if !r.Valid() {
		return fmt.Errorf("invalid role %q", *role)
	}

	cfg := config.Load()
	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	plaintext, err := readPassword()
	if err != nil {
		return err
	}

	hasher := password.NewHasher(0)
	digest, err := hasher.Hash(plaintext)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	ctx := context.Background()
	if err := database.RunMigrations(ctx, cfg.Database.URL); err != nil {
		return err
	}
	pool, err := database.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	creator := *createdBy
	if creator == "" {
		creator = *id
	}

	users := repository.NewUserRepository(pool)
	inserted, err := users.CreateIfAbsent(ctx, domain.UserRow{
		ID:           *id,
		PasswordHash: digest,
		Role:         r,
		CreatedBy:    creator,
	})
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	if !inserted {
		return fmt.Errorf("user %q already exists", *id)
	}

	fmt.Printf("created user %s (%s)\n", *id, r)
	return nil
}

// readPassword prompts twice without echo and requires both entries to match.
func readPassword() (string, error) {
	fmt.Print("Password: ")
	first, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}

	fmt.Print("Confirm password: ")
	second, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}

	if string(first) != string(second) {
		return "", fmt.Errorf("passwords do not match")
	}
	if len(first) == 0 {
		return "", fmt.Errorf("password must not be empty")
	}

	return string(first), nil
}
