// Package store persists the BetterSale retail data: customers, products,
// carts, orders and service appointments.
//
// It runs on gorm with a pure-Go SQLite driver by default and on PostgreSQL
// when configured. Every operation takes a context and returns typed views
// whose JSON encoding is what the agent tools hand to the model.
package store

import (
	"context"
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Sentinel errors. Match them with errors.Cause.
var (
	ErrNotFound  = errors.New("store: not found")
	ErrEmptyCart = errors.New("store: cart is empty")
)

// Config selects the database.
type Config struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string `yaml:"driver"`
	// DSN is a file path or SQLite URI for sqlite, a connection string for
	// postgres. Defaults to "bettersale.db".
	DSN string `yaml:"dsn"`
	// Debug logs every SQL statement.
	Debug bool `yaml:"debug"`
}

// Store is safe for concurrent use.
type Store struct {
	db  *gorm.DB
	log logrus.FieldLogger

	now func() time.Time

	rndMu sync.Mutex
	rnd   *rand.Rand
}

// Option customises a Store.
type Option func(*Store)

// WithLogger sets the logger. The default discards output.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Store) { s.log = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithRand seeds the source used for tracking numbers.
func WithRand(seed int64) Option {
	return func(s *Store) { s.rnd = rand.New(rand.NewSource(seed)) }
}

// Open connects to the configured database. Call Migrate before use.
func Open(cfg Config, opts ...Option) (*Store, error) {
	s := &Store{
		log: discardLogger(),
		now: time.Now,
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, o := range opts {
		o(s)
	}

	level := logger.Silent
	if cfg.Debug {
		level = logger.Info
	}
	gcfg := &gorm.Config{
		Logger: logger.New(s.log, logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: func() time.Time { return s.now() },
	}

	var dialector gorm.Dialector
	switch strings.ToLower(cfg.Driver) {
	case "", "sqlite", "sqlite3":
		dialector = sqlite.Open(sqliteDSN(cfg.DSN))
	case "postgres", "postgresql":
		if cfg.DSN == "" {
			return nil, errors.New("store: postgres driver requires a dsn")
		}
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, errors.Errorf("store: unknown driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, gcfg)
	if err != nil {
		return nil, errors.Wrap(err, "store: open database")
	}
	if isMemory(cfg.DSN) {
		// Each connection to ":memory:" is a separate database.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, errors.Wrap(err, "store: database handle")
		}
		sqlDB.SetMaxOpenConns(1)
	}
	s.db = db
	s.log.WithField("driver", dialector.Name()).Debug("store opened")
	return s, nil
}

func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = "bettersale.db"
	}
	if strings.Contains(dsn, "_pragma=foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)"
}

func isMemory(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// allModels lists tables parent first.
func allModels() []any {
	return []any{
		&Customer{}, &Address{}, &CommunicationPreferences{}, &SportsProfile{},
		&Product{}, &CartItem{}, &Order{}, &OrderItem{}, &Appointment{},
	}
}

// Migrate creates or updates every table without touching existing rows.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(allModels()...); err != nil {
		return errors.Wrap(err, "store: migrate")
	}
	return nil
}

// Reset drops and recreates every table.
func (s *Store) Reset(ctx context.Context) error {
	models := allModels()
	m := s.db.WithContext(ctx).Migrator()
	for i := len(models) - 1; i >= 0; i-- {
		if err := m.DropTable(models[i]); err != nil {
			return errors.Wrap(err, "store: drop tables")
		}
	}
	s.log.Info("database tables dropped")
	return s.Migrate(ctx)
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "store: database handle")
	}
	return errors.Wrap(sqlDB.PingContext(ctx), "store: ping")
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "store: database handle")
	}
	return sqlDB.Close()
}

// Stats returns row counts per table.
func (s *Store) Stats(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64)
	db := s.db.WithContext(ctx)
	for _, m := range allModels() {
		table := m.(interface{ TableName() string }).TableName()
		var n int64
		if err := db.Model(m).Count(&n).Error; err != nil {
			return nil, errors.Wrapf(err, "store: count %s", table)
		}
		out[table] = n
	}
	return out, nil
}

func (s *Store) intn(n int) int {
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	return s.rnd.Intn(n)
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
