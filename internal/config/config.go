// Package config builds the pipeline configuration from environment variables.
//
// The configuration is a plain value: it is constructed once at process start
// by Load and passed to the components that need it. Nothing in this package
// holds global state.
package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// DefaultDatabaseURL is used when neither DB_URL nor any discrete connection
// setting is present.
const DefaultDatabaseURL = "sqlite:///./data/bynd_pipeline.db"

const (
	DefaultTableName  = "customers_and_transactions"
	DefaultSourceFile = "./data/mock_dataset.csv"
	DefaultBatchSize  = 500
	DefaultJobName    = "customer_etl"
)

// Config is the immutable run configuration.
type Config struct {
	// DatabaseURL is the resolved sink connection URL (see resolveDatabaseURL).
	DatabaseURL string
	DB          DBParts

	TableName  string
	SourceFile string

	CSV CSVOptions

	// BatchSize is the number of rows per INSERT statement in the sink.
	BatchSize int

	LogLevel  string
	LogFormat string

	MetricsBackend string
	MetricsTags    string
	JobName        string
}

// DBParts are the discrete connection settings used when DB_URL is unset.
type DBParts struct {
	Driver   string // postgres | sqlserver
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// CSVOptions control how the source file is tokenized.
type CSVOptions struct {
	Delimiter  rune
	LazyQuotes bool
	// TrimSpace strips leading and trailing blanks from every cell.
	TrimSpace bool
}

// Severity ranks a configuration issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is a single validation finding. Path names the offending setting.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

// Load reads the configuration from getenv. Pass os.Getenv in production and
// a map lookup in tests.
//
// Malformed numeric or boolean values fall back to their defaults here and
// are reported by Validate, so Load itself never fails.
func Load(getenv func(string) string) Config {
	if getenv == nil {
		getenv = func(string) string { return "" }
	}
	env := func(k string) string { return strings.TrimSpace(getenv(k)) }

	parts := DBParts{
		Driver:   strings.ToLower(env("DB_DRIVER")),
		Host:     env("DB_HOST"),
		Port:     env("DB_PORT"),
		User:     env("DB_USER"),
		Password: getenv("DB_PASSWORD"),
		Name:     env("DB_NAME"),
		SSLMode:  env("DB_SSLMODE"),
	}

	cfg := Config{
		DatabaseURL: resolveDatabaseURL(env("DB_URL"), parts),
		DB:          parts,

		TableName:  envOr(env, "DB_TABLE_NAME", DefaultTableName),
		SourceFile: envOr(env, "SOURCE_DATA_FILE", DefaultSourceFile),

		CSV: CSVOptions{
			Delimiter:  envRune(env, "CSV_DELIMITER", ','),
			LazyQuotes: envBool(env, "CSV_LAZY_QUOTES", false),
			TrimSpace:  envBool(env, "CSV_TRIM_SPACE", false),
		},

		BatchSize: envInt(env, "INSERT_BATCH_SIZE", DefaultBatchSize),

		LogLevel:  envOr(env, "LOG_LEVEL", "info"),
		LogFormat: envOr(env, "LOG_FORMAT", "auto"),

		MetricsBackend: strings.ToLower(env("METRICS_BACKEND")),
		MetricsTags:    env("METRICS_TAGS"),
		JobName:        envOr(env, "JOB_NAME", DefaultJobName),
	}
	return cfg
}

// With returns a copy of c with the non-empty overrides applied. The CLI uses
// it for flag values; the receiver is never modified.
func (c Config) With(o Overrides) Config {
	if o.DatabaseURL != "" {
		c.DatabaseURL = o.DatabaseURL
	}
	if o.TableName != "" {
		c.TableName = o.TableName
	}
	if o.SourceFile != "" {
		c.SourceFile = o.SourceFile
	}
	if o.MetricsBackend != "" {
		c.MetricsBackend = strings.ToLower(o.MetricsBackend)
	}
	return c
}

// Overrides are explicit values that take precedence over the environment.
type Overrides struct {
	DatabaseURL    string
	TableName      string
	SourceFile     string
	MetricsBackend string
}

// resolveDatabaseURL applies the precedence: explicit URL, then a URL built
// from discrete settings, then the local SQLite default.
func resolveDatabaseURL(explicit string, p DBParts) string {
	if explicit != "" {
		return explicit
	}
	if !p.any() {
		return DefaultDatabaseURL
	}

	driver := p.Driver
	if driver == "" {
		driver = "postgres"
	}
	host := p.Host
	if host == "" {
		host = "localhost"
	}
	port := p.Port
	if port == "" {
		port = defaultPort(driver)
	}

	u := url.URL{
		Scheme: driver,
		Host:   net.JoinHostPort(host, port),
	}
	if p.User != "" {
		if p.Password != "" {
			u.User = url.UserPassword(p.User, p.Password)
		} else {
			u.User = url.User(p.User)
		}
	}

	q := url.Values{}
	switch driver {
	case "sqlserver", "mssql":
		if p.Name != "" {
			q.Set("database", p.Name)
		}
	default:
		if p.Name != "" {
			u.Path = "/" + p.Name
		}
		if p.SSLMode != "" {
			q.Set("sslmode", p.SSLMode)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (p DBParts) any() bool {
	return p.Host != "" || p.Port != "" || p.User != "" || p.Password != "" || p.Name != ""
}

func defaultPort(driver string) string {
	switch driver {
	case "sqlserver", "mssql":
		return "1433"
	default:
		return "5432"
	}
}

// Validate checks the configuration for settings that would make a run fail
// late. Errors must abort startup; warnings are informational.
func (c Config) Validate() []Issue {
	var issues []Issue
	add := func(sev Severity, path, format string, a ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, a...)})
	}

	if strings.TrimSpace(c.DatabaseURL) == "" {
		add(SeverityError, "DB_URL", "connection URL resolved to an empty string")
	} else if _, err := url.Parse(c.DatabaseURL); err != nil {
		add(SeverityError, "DB_URL", "invalid URL: %v", err)
	}

	if strings.TrimSpace(c.TableName) == "" {
		add(SeverityError, "DB_TABLE_NAME", "table name must not be empty")
	} else if strings.ContainsAny(c.TableName, " \t;\"'`[]") {
		add(SeverityError, "DB_TABLE_NAME", "table name %q contains characters that cannot be used in an identifier", c.TableName)
	}

	if strings.TrimSpace(c.SourceFile) == "" {
		add(SeverityError, "SOURCE_DATA_FILE", "source file path must not be empty")
	}

	if c.BatchSize <= 0 {
		add(SeverityError, "INSERT_BATCH_SIZE", "batch size must be positive, got %d", c.BatchSize)
	}

	switch c.CSV.Delimiter {
	case '"', '\r', '\n', 0:
		add(SeverityError, "CSV_DELIMITER", "invalid delimiter %q", c.CSV.Delimiter)
	}

	switch c.MetricsBackend {
	case "", "none", "noop", "datadog", "dd":
	default:
		add(SeverityWarning, "METRICS_BACKEND", "unknown metrics backend %q; metrics will be disabled", c.MetricsBackend)
	}

	if c.DB.Driver != "" && c.DB.Driver != "postgres" && c.DB.Driver != "postgresql" &&
		c.DB.Driver != "sqlserver" && c.DB.Driver != "mssql" {
		add(SeverityError, "DB_DRIVER", "unsupported driver %q (want postgres|sqlserver)", c.DB.Driver)
	}

	return issues
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Redacted returns DatabaseURL with any password masked, for logging.
func (c Config) Redacted() string {
	u, err := url.Parse(c.DatabaseURL)
	if err != nil || u.User == nil {
		return c.DatabaseURL
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

func envOr(env func(string) string, key, def string) string {
	if v := env(key); v != "" {
		return v
	}
	return def
}

// envInt returns def when the variable is unset. A malformed value yields
// -1 so Validate can report it instead of silently using the default.
func envInt(env func(string) string, key string, def int) int {
	v := env(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}

func envBool(env func(string) string, key string, def bool) bool {
	v := env(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envRune(env func(string) string, key string, def rune) rune {
	v := env(key)
	switch {
	case v == "":
		return def
	case v == `\t` || strings.EqualFold(v, "tab"):
		return '\t'
	}
	r := []rune(v)
	if len(r) != 1 {
		return 0
	}
	return r[0]
}
