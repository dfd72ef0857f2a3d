package postgres

import (
	"net/url"
	"strconv"
	"strings"

	"url-rewrite/internal/common/errors"
)

const (
	defaultPort    = 5432
	defaultSSLMode = "prefer"
)

// Config holds the connection settings of the rule database. MaxConns of
// zero keeps the pgxpool default.
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSLMode  string
	MaxConns int32
}

// Validate fills the default port and SSL mode and rejects missing settings
func (c *Config) Validate() error {
	var missing []string
	if c.Host == "" {
		missing = append(missing, "host")
	}
	if c.Database == "" {
		missing = append(missing, "database")
	}
	if c.Username == "" {
		missing = append(missing, "username")
	}
	if len(missing) > 0 {
		return errors.ConfigError("postgres rule store is missing " + strings.Join(missing, ", "))
	}

	if c.Port <= 0 {
		c.Port = defaultPort
	}
	if c.SSLMode == "" {
		c.SSLMode = defaultSSLMode
	}
	return nil
}

// GetConnectionString returns a postgres:// URL understood by pgx
func (c *Config) GetConnectionString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Username, c.Password),
		Host:     c.Host + ":" + strconv.Itoa(c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// NewConfigFromURL parses a postgres:// or postgresql:// URL. A pool_max_conns
// query parameter sets MaxConns.
func NewConfigFromURL(connStr string) (*Config, error) {
	u, err := url.Parse(connStr)
	if err != nil {
		return nil, errors.ConfigError("invalid PostgreSQL URL: " + err.Error())
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return nil, errors.ConfigError("PostgreSQL URL must use the postgres scheme")
	}

	c := &Config{
		Host:     u.Hostname(),
		Port:     defaultPort,
		Database: strings.TrimPrefix(u.Path, "/"),
		SSLMode:  defaultSSLMode,
	}
	if u.User != nil {
		c.Username = u.User.Username()
		c.Password, _ = u.User.Password()
	}
	if p, err := strconv.Atoi(u.Port()); err == nil {
		c.Port = p
	}

	q := u.Query()
	if mode := q.Get("sslmode"); mode != "" {
		c.SSLMode = mode
	}
	if n, err := strconv.ParseInt(q.Get("pool_max_conns"), 10, 32); err == nil && n > 0 {
		c.MaxConns = int32(n)
	}
	return c, nil
}
