package server

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/jrsteele09/go-wallet-web/clients"
	"github.com/jrsteele09/go-wallet-web/internal/config"
	"github.com/jrsteele09/go-wallet-web/users"
	"github.com/rs/zerolog/log"
)

const (
	// CLIClientID is the public client walletctl signs in with.
	CLIClientID   = "walletctl"
	CLIClientName = "Wallet command line"

	WebClientName = "Wallet web front end"
)

// InitialiseSystem seeds the local authority with the demo account and the
// web and CLI clients. It returns the demo password when one was generated.
func InitialiseSystem(cfg config.Config, userRepo users.UserRepo, clientRepo clients.Repo) (generatedPassword string, err error) {
	if err := createClient(clientRepo, cfg.GetClientID(), WebClientName, cfg.GetClientSecret()); err != nil {
		return "", fmt.Errorf("failed to bootstrap web client: %w", err)
	}
	if err := createClient(clientRepo, CLIClientID, CLIClientName, ""); err != nil {
		return "", fmt.Errorf("failed to bootstrap CLI client: %w", err)
	}

	generatedPassword, err = bootstrapDemoUser(userRepo, cfg.GetDemoUserEmail(), cfg.GetDemoUserPassword())
	if err != nil {
		return "", fmt.Errorf("failed to bootstrap demo user: %w", err)
	}

	if generatedPassword != "" {
		log.Info().
			Str("email", cfg.GetDemoUserEmail()).
			Str("password", generatedPassword).
			Msg("created demo user, this password will not be displayed again")
	}
	log.Info().
		Str("token", cfg.GetBaseURL()+"/oauth2/token").
		Str("web_client", cfg.GetClientID()).
		Str("cli_client", CLIClientID).
		Msg("local authority ready")
	return generatedPassword, nil
}

// createClient registers a client unless it already exists. An empty secret
// makes it public.
func createClient(clientRepo clients.Repo, id, description, secret string) error {
	if existing, err := clientRepo.Get(id); err == nil && existing != nil {
		log.Debug().Str("client_id", id).Msg("client already exists")
		return nil
	}

	client := &clients.Client{
		ID:          id,
		Description: description,
		Type:        clients.ClientTypePublic,
	}
	if secret != "" {
		hash, err := clients.HashSecret(secret)
		if err != nil {
			return fmt.Errorf("failed to hash client secret: %w", err)
		}
		client.Type = clients.ClientTypeConfidential
		client.SecretHash = hash
	}
	if err := clientRepo.Upsert(client); err != nil {
		return fmt.Errorf("failed to create client %s: %w", id, err)
	}
	log.Debug().Str("client_id", id).Str("type", string(client.Type)).Msg("created client")
	return nil
}

func bootstrapDemoUser(userRepo users.UserRepo, email, password string) (generatedPassword string, err error) {
	if existing, err := userRepo.GetByEmail(email); err == nil && existing != nil {
		return "", nil
	}

	if password == "" {
		// Generate a secure random password
		passwordBytes := make([]byte, 16)
		if _, err := rand.Read(passwordBytes); err != nil {
			return "", fmt.Errorf("failed to generate password: %w", err)
		}
		// the prefix keeps generated passwords within the strength rules
		password = "Wa1" + base64.RawURLEncoding.EncodeToString(passwordBytes)
		generatedPassword = password
	} else if err := users.ValidatePasswordStrength(password); err != nil {
		return "", err
	}

	passwordHash, err := users.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	username, _, _ := strings.Cut(email, "@")
	demo := &users.User{
		Email:        email,
		Username:     username,
		PasswordHash: passwordHash,
		FirstName:    "Demo",
		LastName:     "User",
		DateJoined:   time.Now(),
		Verified:     true,
	}
	if err := userRepo.Upsert(demo); err != nil {
		return "", fmt.Errorf("failed to create demo user: %w", err)
	}
	return generatedPassword, nil
}
