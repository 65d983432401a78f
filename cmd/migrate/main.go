// Command migrate applies or rolls back the golang-migrate migrations
// under migrations/ against the IntegrationEventLog schema. It's the
// CLI cmd/republisher's best-effort EnsureSchema fallback exists to
// avoid depending on in production: run this once at deploy time
// instead of relying on the CREATE TABLE IF NOT EXISTS helper.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/Haleralex/eventbus/internal/logging"
)

func main() {
	logger := logging.Setup(logging.DefaultConfig())

	var (
		migrationsPath string
		databaseURL    string
		command        string
		steps          int
	)

	flag.StringVar(&migrationsPath, "path", "./migrations", "Path to migrations directory")
	flag.StringVar(&databaseURL, "database-url", "", "Database connection URL")
	flag.StringVar(&command, "command", "up", "Migration command: up, down, force, version, drop")
	flag.IntVar(&steps, "steps", 0, "Number of steps for up/down (0 = all)")
	flag.Parse()

	args := flag.Args()
	if len(args) > 0 {
		command = args[0]
	}
	if len(args) > 1 {
		var err error
		steps, err = strconv.Atoi(args[1])
		if err != nil {
			logger.Error("invalid steps argument", "value", args[1], "error", err)
			os.Exit(1)
		}
	}

	databaseURL = resolveDatabaseURL(databaseURL)
	if databaseURL == "" {
		logger.Error("database URL is required: use -database-url flag, DATABASE_URL, or EVENTBUS_DATABASE_* env vars")
		os.Exit(1)
	}

	m, err := migrate.New("file://"+migrationsPath, databaseURL)
	if err != nil {
		logger.Error("creating migrate instance", "error", err)
		os.Exit(1)
	}
	defer m.Close()
	m.Log = &migrationLogger{logger: logger}

	if err := runCommand(m, command, args, steps, logger); err != nil {
		logger.Error("migrate command failed", "command", command, "error", err)
		os.Exit(1)
	}
}

// resolveDatabaseURL prefers an explicit flag, then DATABASE_URL, then
// assembles one from EVENTBUS_DATABASE_* env vars. (cmd/republisher
// reads DATABASE_URL only.)
func resolveDatabaseURL(fromFlag string) string {
	if fromFlag != "" {
		return fromFlag
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	host := getEnvOrDefault("EVENTBUS_DATABASE_HOST", "localhost")
	port := getEnvOrDefault("EVENTBUS_DATABASE_PORT", "5432")
	user := getEnvOrDefault("EVENTBUS_DATABASE_USER", "postgres")
	password := getEnvOrDefault("EVENTBUS_DATABASE_PASSWORD", "postgres")
	dbname := getEnvOrDefault("EVENTBUS_DATABASE_NAME", "eventbus")
	sslmode := getEnvOrDefault("EVENTBUS_DATABASE_SSLMODE", "disable")

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		user, password, host, port, dbname, sslmode)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// runCommand dispatches one of up/down/force/version/drop against m.
// "create" isn't included: IntegrationEventLog is a single fixed
// schema (see migrations/000001_*), so there's no scaffolding step
// worth a subcommand — a new migration file is added by hand the same
// way 000001 was.
func runCommand(m *migrate.Migrate, command string, args []string, steps int, logger *slog.Logger) error {
	switch command {
	case "up":
		return runUp(m, steps, logger)
	case "down":
		return runDown(m, steps, logger)
	case "force":
		return runForce(m, args, logger)
	case "version":
		return runVersion(m, logger)
	case "drop":
		return runDrop(m, logger)
	default:
		return fmt.Errorf("unknown command %q (available: up, down, force, version, drop)", command)
	}
}

func runUp(m *migrate.Migrate, steps int, logger *slog.Logger) error {
	var err error
	if steps > 0 {
		err = m.Steps(steps)
	} else {
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	logger.Info("migrations applied")
	return nil
}

func runDown(m *migrate.Migrate, steps int, logger *slog.Logger) error {
	var err error
	if steps > 0 {
		err = m.Steps(-steps)
	} else {
		err = m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	logger.Info("migrations rolled back")
	return nil
}

func runForce(m *migrate.Migrate, args []string, logger *slog.Logger) error {
	if len(args) < 2 {
		return errors.New("force requires a version argument")
	}
	version, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid version: %w", err)
	}
	if err := m.Force(version); err != nil {
		return err
	}
	logger.Info("forced schema version", "version", version)
	return nil
}

func runVersion(m *migrate.Migrate, logger *slog.Logger) error {
	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			logger.Info("no migrations applied yet")
			return nil
		}
		return err
	}
	logger.Info("current schema version", "version", version, "dirty", dirty)
	return nil
}

func runDrop(m *migrate.Migrate, logger *slog.Logger) error {
	if err := m.Drop(); err != nil {
		return err
	}
	logger.Info("all tables dropped")
	return nil
}

// migrationLogger adapts golang-migrate's verbose internal logging
// (source/database step-by-step chatter) onto the module's slog
// logger instead of the bare log/fmt output the rest of this package
// never uses.
type migrationLogger struct {
	logger *slog.Logger
}

func (l *migrationLogger) Printf(format string, v ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

func (l *migrationLogger) Verbose() bool {
	return true
}
