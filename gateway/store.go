package gateway

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/vitwit/xsettle/logger"
	"github.com/vitwit/xsettle/types"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// goose keeps its base FS and dialect in package state.
var migrateMu sync.Mutex

const paymentsTable = "finalized_payments"

// Dialect selects the SQL flavour of a Store.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
)

func (d Dialect) driver() (string, error) {
	switch d {
	case DialectSQLite:
		return "sqlite3", nil
	case DialectPostgres:
		return "pgx", nil
	default:
		return "", types.Errorf(types.CodeConfigError, "unsupported sql dialect %q", d)
	}
}

var ErrNotFound = errors.New("gateway: payment not found")

// Finalized is a payment recorded by a Store.
type Finalized struct {
	PaymentID   types.PaymentID
	Recipient   common.Address
	Token       common.Address
	Amount      *big.Int
	FinalizedAt time.Time
}

// Store finalizes payments by recording them in a SQL table keyed by
// payment id. Recording the same payment twice fails with a
// types.ErrDuplicatePayment-coded error, which makes a Store the place
// where repeated deliveries are caught.
type Store struct {
	db      *sql.DB
	dialect Dialect
	qb      sq.StatementBuilderType
	logger  logger.Logger
	now     func() time.Time
}

var _ Gateway = (*Store)(nil)

// OpenStore connects to dsn, pings it and applies the migrations.
func OpenStore(ctx context.Context, dialect Dialect, dsn string, log logger.Logger) (*Store, error) {
	driver, err := dialect.driver()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening %s connection: %w", dialect, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting %s database: %w", dialect, err)
	}

	s := NewStore(db, dialect, log)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore wraps an open database. The schema is expected to be migrated.
func NewStore(db *sql.DB, dialect Dialect, log logger.Logger) *Store {
	if log == nil {
		log = logger.NoopLogger{}
	}
	qb := sq.StatementBuilder.PlaceholderFormat(sq.Question)
	if dialect == DialectPostgres {
		qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return &Store{
		db:      db,
		dialect: dialect,
		qb:      qb,
		logger:  log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Migrate brings the schema up to date.
func (s *Store) Migrate(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("migration error: db is nil")
	}

	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect(string(s.dialect)); err != nil {
		return fmt.Errorf("migration error setting dialect for db: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, "migrations"); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	return nil
}

func (s *Store) FinalizeIncomingPayment(ctx context.Context, paymentID types.PaymentID, recipient, token common.Address, amount *big.Int) error {
	query, args, err := s.qb.
		Insert(paymentsTable).
		Columns("payment_id", "recipient", "token", "amount", "finalized_at").
		Values(paymentID.Hex(), recipient.Hex(), token.Hex(), amount.String(), s.now()).
		ToSql()
	if err != nil {
		return fmt.Errorf("error building insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			s.logger.Warn("payment already finalized", map[string]any{"payment_id": paymentID.Hex()})
			return types.Wrap(types.CodeDuplicatePayment, err, "payment %s already finalized", paymentID.Hex())
		}
		s.logger.Error("error recording payment", map[string]any{"payment_id": paymentID.Hex(), "error": err})
		return fmt.Errorf("unexpected DB error: %w", err)
	}
	return nil
}

// Lookup returns the record of paymentID or ErrNotFound.
func (s *Store) Lookup(ctx context.Context, paymentID types.PaymentID) (*Finalized, error) {
	query, args, err := s.qb.
		Select("payment_id", "recipient", "token", "amount", "finalized_at").
		From(paymentsTable).
		Where(sq.Eq{"payment_id": paymentID.Hex()}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("error building select: %w", err)
	}

	var (
		id, to, token, amount string
		at                    time.Time
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&id, &to, &token, &amount, &at)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("unexpected DB error: %w", err)
	}

	value, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return nil, fmt.Errorf("stored amount %q of payment %s is not an integer", amount, id)
	}
	return &Finalized{
		PaymentID:   types.PaymentID(common.HexToHash(id)),
		Recipient:   common.HexToAddress(to),
		Token:       common.HexToAddress(token),
		Amount:      value,
		FinalizedAt: at,
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.UniqueViolation
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
