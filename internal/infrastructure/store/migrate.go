package store

import (
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ConnectPostgres establishes a connection to PostgreSQL
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// Migrate brings the schema up to date with the embedded migrations.
func Migrate(db *sql.DB, log *slog.Logger) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{log: log})
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "set goose dialect")
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	return nil
}

// gooseLogger routes goose output to slog. goose calls Fatal only from its
// CLI helpers, which Migrate does not use.
type gooseLogger struct {
	log *slog.Logger
}

func (l gooseLogger) Fatal(v ...interface{}) { l.log.Error(trim(fmt.Sprint(v...))) }

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.log.Error(trim(fmt.Sprintf(format, v...)))
}

func (l gooseLogger) Print(v ...interface{}) { l.log.Info(trim(fmt.Sprint(v...))) }

func (l gooseLogger) Println(v ...interface{}) { l.log.Info(trim(fmt.Sprint(v...))) }

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.log.Info(trim(fmt.Sprintf(format, v...)))
}

func trim(msg string) string { return strings.TrimRight(msg, "\n") }
