package config

import (
	"net/url"
	"time"

	"github.com/spf13/viper"
)

// PublicAudience is the well-known collection addressing every actor.
const PublicAudience = "https://www.w3.org/ns/activitystreams#Public"

type Configuration struct {
	// Name of the instance, shown in actor documents and the User-Agent header.
	Name string
	// Host is the name of the host running the application, as remote servers see it.
	Host string
	// Url is the instance's base url.
	Url *url.URL
	// Https controls the scheme used when building local URIs.
	Https bool
	Port  uint16
	// DbUrl is the path to the database file.
	DbUrl string
	// QueueDbUrl is the path to the database file backing the delivery queue.
	QueueDbUrl string
	// MigrationsFolder holds the golang-migrate SQL files applied at setup.
	MigrationsFolder string
	// RsaKeySize specifies the size of the RSA keys generated for local accounts.
	RsaKeySize int
	// InboxSize caps the number of retained entries per local inbox. Inserting
	// past the cap prunes the oldest entries in the same transaction.
	InboxSize int
	// ActorCacheTTL bounds how long a resolved remote actor is served from the
	// in-process cache before the database row is consulted again.
	ActorCacheTTL time.Duration
	// RefetchAfter is the age past which a cached remote account is re-fetched
	// and re-verified on its next resolution.
	RefetchAfter time.Duration
	// Debug, if true, will make the application log all HTTP requests and other events.
	Debug bool
}

func ReadConfig() (Configuration, error) {
	v := viper.New()
	v.SetConfigName("feather")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/feather")
	v.SetEnvPrefix("feather")
	v.AutomaticEnv()

	v.SetDefault("name", "feather")
	v.SetDefault("port", 8080)
	v.SetDefault("https", true)
	v.SetDefault("db_url", "feather.db")
	v.SetDefault("queue_db_url", "feather-queue.db")
	v.SetDefault("migrations_folder", "migrations")
	v.SetDefault("rsa_key_size", 2048)
	v.SetDefault("inbox_size", 4096)
	v.SetDefault("actor_cache_ttl", "6h")
	v.SetDefault("refetch_after", "24h")

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return Configuration{}, err
		}
	}

	cfg := Configuration{
		Name:             v.GetString("name"),
		Host:             v.GetString("host"),
		Https:            v.GetBool("https"),
		Port:             uint16(v.GetUint32("port")),
		DbUrl:            v.GetString("db_url"),
		QueueDbUrl:       v.GetString("queue_db_url"),
		MigrationsFolder: v.GetString("migrations_folder"),
		RsaKeySize:       v.GetInt("rsa_key_size"),
		InboxSize:        v.GetInt("inbox_size"),
		ActorCacheTTL:    v.GetDuration("actor_cache_ttl"),
		RefetchAfter:     v.GetDuration("refetch_after"),
		Debug:            v.GetBool("debug"),
	}

	scheme := "https"
	if !cfg.Https {
		scheme = "http"
	}
	cfg.Url = &url.URL{Scheme: scheme, Host: cfg.Host}
	return cfg, nil
}
