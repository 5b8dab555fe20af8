// The initialization package sets up the required dependencies: the SQLite
// database, its migrations, the delivery queue and the instance actor.
package initialization

import (
	"context"
	"crypto/rsa"
	"database/sql"
	"errors"
	"time"

	"github.com/golang-migrate/migrate"
	"github.com/golang-migrate/migrate/database/sqlite3"
	_ "github.com/golang-migrate/migrate/source/file"
	"github.com/google/uuid"
	"github.com/mikestefanello/backlite"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/feather/internal/config"
	"github.com/sidereusnuntius/feather/internal/db"
	"github.com/sidereusnuntius/feather/internal/domain"
	"github.com/sidereusnuntius/feather/internal/utils"
)

// SetupDB applies all remaining migrations.
func SetupDB(cfg *config.Configuration, d *sql.DB, folder, dbname string) error {
	log.Info().Msg("starting migrations")
	driver, err := sqlite3.WithInstance(d, &sqlite3.Config{})
	if err != nil {
		log.Error().Err(err).Msg("failed to create sqlite3 migration driver")
		return err
	}

	mig, err := migrate.NewWithDatabaseInstance(
		"file://"+folder,
		dbname,
		driver,
	)
	if err != nil {
		log.Error().Err(err).Msg("failed to create Migrate object")
		return err
	}

	if err = mig.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Error().Err(err).Msg("failed to run migrations")
		return err
	}
	return nil
}

func OpenDB(connString string) (*sql.DB, error) {
	d, err := sql.Open("sqlite3", connString)
	if err != nil {
		log.Error().Err(err).Str("connection string", connString).Msg("failed to open database")
	}
	return d, err
}

// InitQueue opens the queue database and installs the backlite schema.
func InitQueue(cfg *config.Configuration) (*backlite.Client, error) {
	d, err := OpenDB(cfg.QueueDbUrl)
	if err != nil {
		return nil, err
	}

	client, err := backlite.NewClient(backlite.ClientConfig{
		DB:              d,
		NumWorkers:      4,
		ReleaseAfter:    10 * time.Minute,
		CleanupInterval: time.Hour,
	})
	if err != nil {
		return nil, err
	}

	if err = client.Install(); err != nil {
		return nil, err
	}
	return client, nil
}

// EnsureInstanceActor creates the actor this server itself signs fetches
// with, if it does not exist yet, and returns it with its private key.
func EnsureInstanceActor(ctx context.Context, database db.DB, cfg *config.Configuration) (*domain.Actor, *rsa.PrivateKey, error) {
	actor, err := database.SelectActorByUsernameAndHost(ctx, cfg.Name, "")
	if errors.Is(err, db.ErrNotFound) {
		log.Info().Str("username", cfg.Name).Msg("creating instance actor")
		actor, err = database.InsertLocalAccount(ctx, cfg.Name, uuid.NewString(), cfg.Name, "", true)
	}
	if err != nil {
		return nil, nil, err
	}

	account, err := database.SelectLocalAccountByActorID(ctx, actor.ID)
	if err != nil {
		return nil, nil, err
	}

	key, err := utils.ParsePrivateKeyPem(account.PrivateKeyPem)
	if err != nil {
		return nil, nil, err
	}
	return actor, key, nil
}
