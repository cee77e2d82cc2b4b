// Package config loads the settings of a diff run from the environment.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/acronis/go-appkit/log"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/spf13/viper"

	"github.com/technopolitica/pgdiff/internal/domain"
)

const (
	cfgKeySetupImages        = "setup_images"
	cfgKeySchemas            = "schemas"
	cfgKeyDBURI              = "db_uri"
	cfgKeyPGImage            = "pg_image"
	cfgKeyMigraImage         = "migra_image"
	cfgKeyTargetNetwork      = "target_network"
	cfgKeyStartupTimeout     = "startup_timeout"
	cfgKeySetupTimeout       = "setup_timeout"
	cfgKeyPGReadyOccurrences = "pg_ready_occurrences"
	cfgKeyLogLevel           = "log_level"
	cfgKeyLogFormat          = "log_format"
)

const (
	DefaultDBURI              = "postgres:postgres@localhost:5432/postgres"
	DefaultPGImage            = "lovelysystems/docker-postgres:0.1.0"
	DefaultMigraImage         = "lovelysystems/migra:1.0.1597374790"
	DefaultStartupTimeout     = 60 * time.Second
	DefaultSetupTimeout       = 10 * time.Minute
	DefaultPGReadyOccurrences = 1
)

var allKeys = []string{
	cfgKeySetupImages,
	cfgKeySchemas,
	cfgKeyDBURI,
	cfgKeyPGImage,
	cfgKeyMigraImage,
	cfgKeyTargetNetwork,
	cfgKeyStartupTimeout,
	cfgKeySetupTimeout,
	cfgKeyPGReadyOccurrences,
	cfgKeyLogLevel,
	cfgKeyLogFormat,
}

// Config is the immutable description of one diff run.
type Config struct {
	// SetupImages run in order against the reference database. Never empty.
	SetupImages []string
	// Schemas to diff one by one. Nil means the whole database is diffed.
	Schemas []string
	// DBURI is the target database as given, possibly without a scheme.
	DBURI      string
	PGImage    string
	MigraImage string
	// TargetNetwork is an existing docker network migra joins in addition to
	// the run's network, for targets that live in a container themselves.
	TargetNetwork string
	// DBName is the database name of DBURI. The reference database is
	// compared under the same name.
	DBName string

	StartupTimeout     time.Duration
	SetupTimeout       time.Duration
	PGReadyOccurrences int

	Log log.Config
}

// TargetURL is DBURI with a postgres:// scheme, as the diff tool expects it.
func (c Config) TargetURL() string {
	return targetURL(c.DBURI)
}

func targetURL(dbURI string) string {
	if strings.Contains(dbURI, "://") {
		return dbURI
	}
	return "postgres://" + dbURI
}

// FromEnv reads the configuration from the process environment.
func FromEnv() (Config, error) {
	v := viper.New()
	for _, key := range allKeys {
		// keys map onto the upper-cased environment variable of the same name
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("failed to bind %s: %w", strings.ToUpper(key), err)
		}
	}
	return Load(v)
}

// Load builds a Config from v, applying defaults for unset keys.
func Load(v *viper.Viper) (cfg Config, err error) {
	setDefaults(v)

	cfg.SetupImages = splitList(v.GetString(cfgKeySetupImages))
	if len(cfg.SetupImages) == 0 {
		err = &domain.ConfigurationError{Setting: "SETUP_IMAGES", Reason: "not defined"}
		return
	}
	cfg.Schemas = splitList(v.GetString(cfgKeySchemas))
	for _, schema := range cfg.Schemas {
		// schema names become file names in the output directory
		if strings.ContainsAny(schema, `/\`) || schema == "." || schema == ".." {
			err = &domain.ConfigurationError{Setting: "SCHEMAS", Reason: fmt.Sprintf("%q is not usable as a file name", schema)}
			return
		}
	}
	cfg.DBURI = v.GetString(cfgKeyDBURI)
	cfg.PGImage = v.GetString(cfgKeyPGImage)
	cfg.MigraImage = v.GetString(cfgKeyMigraImage)
	cfg.TargetNetwork = strings.TrimSpace(v.GetString(cfgKeyTargetNetwork))

	cfg.DBName, err = ParseDBName(cfg.DBURI)
	if err != nil {
		return
	}

	if cfg.StartupTimeout, err = durationSetting(v, cfgKeyStartupTimeout); err != nil {
		return
	}
	if cfg.SetupTimeout, err = durationSetting(v, cfgKeySetupTimeout); err != nil {
		return
	}
	cfg.PGReadyOccurrences = v.GetInt(cfgKeyPGReadyOccurrences)
	if cfg.PGReadyOccurrences < 1 {
		err = &domain.ConfigurationError{Setting: "PG_READY_OCCURRENCES", Reason: "must be a positive integer"}
		return
	}

	cfg.Log = log.Config{
		Output: log.OutputStderr,
		Level:  log.Level(v.GetString(cfgKeyLogLevel)),
		Format: log.Format(v.GetString(cfgKeyLogFormat)),
	}
	return
}

// ParseDBName returns the database name addressed by dbURI, the last segment
// of its path. libpq environment defaults such as PGDATABASE are not
// consulted: migra does not see them.
func ParseDBName(dbURI string) (string, error) {
	uri := targetURL(dbURI)
	if _, err := pgconn.ParseConfig(uri); err != nil {
		return "", &domain.ConfigurationError{Setting: "DB_URI", Reason: "not a valid connection string", Err: err}
	}
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", &domain.ConfigurationError{Setting: "DB_URI", Reason: "not a valid connection string", Err: err}
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	name := segments[len(segments)-1]
	if name == "" {
		return "", &domain.ConfigurationError{Setting: "DB_URI", Reason: "missing database name"}
	}
	return name, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(cfgKeyDBURI, DefaultDBURI)
	v.SetDefault(cfgKeyPGImage, DefaultPGImage)
	v.SetDefault(cfgKeyMigraImage, DefaultMigraImage)
	v.SetDefault(cfgKeyStartupTimeout, DefaultStartupTimeout.String())
	v.SetDefault(cfgKeySetupTimeout, DefaultSetupTimeout.String())
	v.SetDefault(cfgKeyPGReadyOccurrences, DefaultPGReadyOccurrences)
	v.SetDefault(cfgKeyLogLevel, string(log.LevelInfo))
	v.SetDefault(cfgKeyLogFormat, string(log.FormatText))
}

func durationSetting(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, &domain.ConfigurationError{Setting: strings.ToUpper(key), Reason: "not a duration", Err: err}
	}
	if d <= 0 {
		return 0, &domain.ConfigurationError{Setting: strings.ToUpper(key), Reason: "must be positive"}
	}
	return d, nil
}

// splitList splits on whitespace. A blank value yields nil.
func splitList(value string) []string {
	items := strings.Fields(value)
	if len(items) == 0 {
		return nil
	}
	return items
}
