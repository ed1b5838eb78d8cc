package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Встраиваемый SQLite (локальный стенд и тесты)

	"github.com/xela07ax/aml-helpdesk/internal/infra"
)

// ErrDisabled - живое хранилище не настроено.
var ErrDisabled = errors.New("sqlstore: live store is disabled")

const (
	DriverPgx    = "pgx"
	DriverSQLite = "sqlite"

	// summaryID - единственная строка таблицы сводки
	summaryID = 1
)

type Config struct {
	Driver       string
	URL          string
	Table        string
	SummaryTable string
	MaxConns     int
	HighRiskKYC  float64
}

func ConfigFrom(store infra.StoreConfig, stats infra.StatsConfig) Config {
	return Config{
		Driver:       store.Driver,
		URL:          store.URL,
		Table:        store.Table,
		SummaryTable: store.SummaryTable,
		MaxConns:     store.MaxConns,
		HighRiskKYC:  stats.HighRiskKYC,
	}
}

// Store - живое хранилище транзакций. Схема таблицы нам не принадлежит:
// имена колонок обнаруживаются, а не задаются.
// Каждая операция берет ровно одно соединение из пула и возвращает его на любом выходе.
type Store struct {
	db           *sql.DB
	driver       string
	table        string
	summaryTable string
	highRiskKYC  float64

	// Кандидаты колонки сортировки ленты, по порядку
	orderColumns []string

	// Кэш списка колонок таблицы, чтобы не делать probe на каждую вставку
	columns *cache.Cache

	now    func() time.Time
	logger *zap.Logger
}

func Open(cfg Config, logger *zap.Logger) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverPgx
	}
	if driver != DriverPgx && driver != DriverSQLite {
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
	if cfg.URL == "" {
		return nil, errors.New("sqlstore: empty connection url")
	}

	db, err := sql.Open(driver, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: failed to open %s: %w", driver, err)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 10
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	cfg.Driver = driver
	return New(db, cfg, logger), nil
}

// New оборачивает уже открытый пул.
func New(db *sql.DB, cfg Config, logger *zap.Logger) *Store {
	table := cfg.Table
	if table == "" {
		table = "transaction"
	}
	summaryTable := cfg.SummaryTable
	if summaryTable == "" {
		summaryTable = "stats_summary"
	}
	highRisk := cfg.HighRiskKYC
	if highRisk == 0 {
		highRisk = 40
	}

	return &Store{
		db:           db,
		driver:       cfg.Driver,
		table:        table,
		summaryTable: summaryTable,
		highRiskKYC:  highRisk,
		orderColumns: []string{"timestamp", "Timestamp"},
		columns:      cache.New(5*time.Minute, 10*time.Minute),
		now:          time.Now,
		logger:       logger.Named("sqlstore"),
	}
}

// Ping проверяет доступность базы при старте
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Driver() string {
	return s.driver
}

// withConn выдает операции одно соединение и гарантированно возвращает его в пул.
func (s *Store) withConn(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("sqlstore: failed to acquire connection: %w", err)
	}
	defer conn.Close()

	return fn(conn)
}

// columnSet возвращает множество колонок таблицы (из кэша или через пустой SELECT).
func (s *Store) columnSet(ctx context.Context, conn *sql.Conn, table string) (map[string]struct{}, error) {
	if v, ok := s.columns.Get(table); ok {
		return v.(map[string]struct{}), nil
	}

	rows, err := conn.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT 0", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("sqlstore: failed to probe columns of %s: %w", table, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("sqlstore: failed to read columns of %s: %w", table, err)
	}

	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	s.columns.Set(table, set, cache.DefaultExpiration)
	return set, nil
}

// queryMaps читает строки как карты "колонка -> значение"; []byte превращается в string.
func queryMaps(ctx context.Context, conn *sql.Conn, query string, args ...any) ([]map[string]any, error) {
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	// Пустой слайс, чтобы в JSON был [] вместо null
	out := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(parts, ", ")
}
