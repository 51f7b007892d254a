package conn

import (
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"oms/internal/errors"
	"oms/pkg/exception"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	defaultSQLitePath = ":memory:"
)

// Option defines connection options. Driver selects postgres (default) or sqlite.
type Option struct {
	Driver     string            `json:"driver" yaml:"driver"`
	Host       string            `json:"host" yaml:"host"`
	Port       int               `json:"port" yaml:"port"`
	User       string            `json:"user" yaml:"user"`
	Password   string            `json:"password" yaml:"password"`
	Database   string            `json:"database" yaml:"database"`
	SSLMode    string            `json:"sslMode" yaml:"sslMode"`
	Params     map[string]string `json:"params" yaml:"params"`
	ConnString string            `json:"dsn" yaml:"dsn"`
	// Path is the sqlite database file, ":memory:" when empty.
	Path            string        `json:"path" yaml:"path"`
	MaxOpenConns    int           `json:"maxOpenConns" yaml:"maxOpenConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" yaml:"connMaxLifetime"`
	Config          *gorm.Config  `json:"-" yaml:"-"`
}

// Client wraps a gorm connection pool.
type Client struct {
	opt Option
	db  *gorm.DB
}

// New opens a connection with the configured driver.
func New(option Option) (*Client, error) {
	dialector, err := option.dialector()
	if err != nil {
		return nil, err
	}

	config := option.Config
	if config == nil {
		config = &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	}

	db, err := gorm.Open(dialector, config)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", option.driver())
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	maxOpen := option.MaxOpenConns
	if option.driver() == DriverSQLite {
		// every new connection to :memory: is a separate database
		maxOpen = 1
	}
	if maxOpen > 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}
	if option.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(option.ConnMaxLifetime)
	}

	return &Client{opt: option, db: db}, nil
}

// Driver returns the normalized driver name.
func (c *Client) Driver() string {
	if c == nil {
		return ""
	}
	return c.opt.driver()
}

// DB returns the underlying gorm.DB instance.
func (c *Client) DB() *gorm.DB {
	if c == nil {
		return nil
	}
	return c.db
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (opt Option) driver() string {
	d := strings.ToLower(strings.TrimSpace(opt.Driver))
	switch d {
	case "", "pg", "postgresql":
		return DriverPostgres
	case "sqlite3":
		return DriverSQLite
	default:
		return d
	}
}

func (opt Option) dialector() (gorm.Dialector, error) {
	switch opt.driver() {
	case DriverPostgres:
		dsn, err := opt.dsn()
		if err != nil {
			return nil, err
		}
		return postgres.Open(dsn), nil
	case DriverSQLite:
		path := opt.ConnString
		if path == "" {
			path = opt.Path
		}
		if path == "" {
			path = defaultSQLitePath
		}
		return sqlite.Open(path), nil
	default:
		return nil, errors.Wrapf(exception.ErrStoreUnknownDriver, "driver %q", opt.Driver)
	}
}
