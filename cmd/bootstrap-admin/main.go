// Command bootstrap-admin creates the first admin account in the identity
// database. Every later account arrives through an invitation.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/intranet/auth-server-go/internal/auth"
	"github.com/intranet/auth-server-go/internal/config"
	"github.com/intranet/auth-server-go/internal/database"
	"github.com/intranet/auth-server-go/internal/model"
	"github.com/intranet/auth-server-go/internal/repository"
	"github.com/intranet/auth-server-go/internal/util"
)

type bootstrapConfig struct {
	IdentityDatabaseURL string `env:"IDENTITY_DATABASE_URL,required"`
	ContentDatabaseURL  string `env:"CONTENT_DATABASE_URL"`
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	email := flag.String("email", "", "admin email address")
	firstname := flag.String("firstname", "Admin", "first name")
	lastname := flag.String("lastname", "User", "last name")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to read .env")
	}

	var cfg bootstrapConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	normalized := util.NormalizeEmail(*email)
	if !util.IsValidEmail(normalized) {
		log.Fatal().Msg("-email must be a valid address")
	}

	password, err := readPassword()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read password")
	}
	if err := auth.ValidatePassword(password); err != nil {
		log.Fatal().Err(err).Msg("password rejected")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to hash password")
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.MigrationTimeout)
	defer cancel()

	db, err := database.Connect(cfg.IdentityDatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to identity database")
	}
	defer db.Close()
	if err := database.Migrate(ctx, db, database.SchemaIdentity); err != nil {
		log.Fatal().Err(err).Msg("failed to run identity migrations")
	}

	identity := repository.NewIdentityStore(db)
	existing, err := identity.Users().FindByEmail(ctx, normalized)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to look up user")
	}
	if existing != nil {
		log.Fatal().Str("email", normalized).Msg("user already exists")
	}

	user, err := identity.Users().Create(ctx, model.CreateUserParams{
		Email:           normalized,
		PasswordHash:    hash,
		Firstname:       strings.TrimSpace(*firstname),
		Lastname:        strings.TrimSpace(*lastname),
		Role:            model.RoleAdmin,
		AlumniValidated: true,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create admin")
	}
	log.Info().Str("userId", user.ID).Str("email", user.Email).Msg("admin created")

	if cfg.ContentDatabaseURL == "" {
		return
	}
	contentDB, err := database.Connect(cfg.ContentDatabaseURL)
	if err != nil {
		log.Warn().Err(err).Msg("content database unavailable, profile will be created on first login")
		return
	}
	defer contentDB.Close()
	if err := database.Migrate(ctx, contentDB, database.SchemaContent); err != nil {
		log.Warn().Err(err).Msg("failed to run content migrations")
		return
	}
	_, err = repository.NewContentStore(contentDB).Profiles().Upsert(ctx, model.UpsertMemberProfileParams{
		UserID:    user.ID,
		Firstname: user.Firstname,
		Lastname:  user.Lastname,
		Email:     user.Email,
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to create admin profile")
	}
}

// readPassword prompts without echo on a terminal and reads one line from
// piped stdin otherwise.
func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, "Password: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
