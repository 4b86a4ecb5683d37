package database

import (
	"context"
	"net/url"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // registers the "postgres" driver
	"github.com/pkg/errors"

	"github.com/trezcool/trainingops/core"
)

var ErrNoAdminCredential = errors.New("service-role credential not configured")

// DSN builds the connection string for the anonymous credential, or the service-role one when admin is set.
// Credentials embedded in Database.URL are kept for the anonymous connection.
func DSN(conf *core.Config, admin bool) (string, error) {
	user := url.UserPassword(conf.Database.User, conf.Database.Password)
	if admin {
		if !conf.Database.HasAdmin() {
			return "", ErrNoAdminCredential
		}
		user = url.UserPassword(conf.Database.AdminUser, conf.Database.AdminPassword)
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   conf.Database.Address(),
		Path:   conf.Database.Name,
	}
	if conf.Database.URL != "" {
		parsed, err := url.Parse(conf.Database.URL)
		if err != nil {
			return "", errors.Wrap(err, "parsing database URL")
		}
		u = *parsed
	}
	if u.User == nil || admin {
		u.User = user
	}

	sslMode := "require"
	if conf.Database.DisableTLS {
		sslMode = "disable"
	}
	q := u.Query()
	if q.Get("sslmode") == "" {
		q.Set("sslmode", sslMode)
	}
	q.Set("timezone", "utc")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Open connects with the anonymous credential, or the service-role credential when admin is set.
func Open(conf *core.Config, admin bool) (*sqlx.DB, error) {
	dsn, err := DSN(conf, admin)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.Open(conf.Database.Engine, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}

	// reports issue one request at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	timeout := conf.Database.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err = ping(ctx, db); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "pinging database")
	}
	return db, nil
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(ctx context.Context, db *sqlx.DB) error {
	var err error
	for attempts := 1; ; attempts++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(err, "DB ping timeout")
		case <-time.After(time.Duration(attempts) * 100 * time.Millisecond):
		}
	}
}
