package storage

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrUnsupportedURL is returned for connection URLs no backend understands.
var ErrUnsupportedURL = errors.New("unsupported database URL")

// ParseURL maps a SQLAlchemy-style connection URL onto a backend Config.
//
//	sqlite:///./data/app.db          -> sqlite, "./data/app.db"
//	sqlite:////var/lib/app.db        -> sqlite, "/var/lib/app.db"
//	sqlite:// or sqlite:///:memory:  -> sqlite, ":memory:"
//	postgresql+psycopg2://u:p@h/db   -> postgres, "postgres://u:p@h/db"
//	mssql+pyodbc://u:p@h:1433/db     -> mssql, "sqlserver://u:p@h:1433?database=db"
//	sqlserver://u:p@h?database=db    -> mssql, unchanged
//
// A "+driver" suffix on the scheme is ignored. For mssql URLs the ODBC
// "driver" query parameter is dropped.
func ParseURL(raw string) (Config, error) {
	raw = strings.TrimSpace(raw)
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok || scheme == "" {
		return Config{}, fmt.Errorf("%w: %q has no scheme", ErrUnsupportedURL, redact(raw))
	}
	scheme = strings.ToLower(scheme)
	if base, _, found := strings.Cut(scheme, "+"); found {
		scheme = base
	}

	switch scheme {
	case "sqlite", "sqlite3":
		return Config{Kind: "sqlite", DSN: sqlitePath(rest)}, nil

	case "postgres", "postgresql":
		return Config{Kind: "postgres", DSN: "postgres://" + rest}, nil

	case "sqlserver":
		return Config{Kind: "mssql", DSN: "sqlserver://" + rest}, nil

	case "mssql":
		dsn, err := mssqlDSN(rest)
		if err != nil {
			return Config{}, err
		}
		return Config{Kind: "mssql", DSN: dsn}, nil
	}
	return Config{}, fmt.Errorf("%w: scheme %q", ErrUnsupportedURL, scheme)
}

// sqlitePath turns the part after "sqlite://" into a file path. SQLAlchemy
// uses one extra slash as the separator, so "/./x.db" is relative and
// "//abs/x.db" is absolute. Query parameters are kept for the driver.
func sqlitePath(rest string) string {
	path := strings.TrimPrefix(rest, "/")
	if path == "" || path == ":memory:" {
		return ":memory:"
	}
	return path
}

func mssqlDSN(rest string) (string, error) {
	u, err := url.Parse("sqlserver://" + rest)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedURL, err)
	}
	q := u.Query()
	q.Del("driver")
	if db := strings.Trim(u.Path, "/"); db != "" {
		q.Set("database", db)
	}
	u.Path = ""
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
