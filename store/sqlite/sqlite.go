/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

INTERFACES IMPLEMENTED:
  ledger.TxStore:      transactions, replenishment requests, ledger reads
  ledger.UserStore:    user records and role changes
  ledger.SettingStore: key/value configuration

LEDGER ENFORCEMENT:
  The running-balance chain lives in the transactions table as two
  nullable columns, running_balance and entry_seq, both written exactly
  once when an entry joins the ledger. A unique partial index on
  entry_seq guarantees the chain stays dense and collision-free even if
  a second writer slips past the engine's serialization.

KEY TABLES:
  users:                   identities and roles, never deleted
  transactions:            cash movements + the running-balance chain
  replenishment_requests:  float injection requests
  settings:                key/value configuration with last-editor audit

CONCURRENCY:
  Uses sync.RWMutex for thread-safety plus WAL mode for better
  concurrency and crash recovery. WithTx wraps the
  read-latest-then-write pair of an approval in one SQL transaction; a
  failure rolls the whole decision back.

USAGE:
  store, err := sqlite.New("./data/pettycash.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := ledger.NewEngine(store)

MIGRATION:
  Schema is auto-migrated on New(). For production at scale, use a
  proper migration tool (golang-migrate, goose) with versioned
  migrations.

SEE ALSO:
  - ledger/store.go: interface definitions
  - ledger/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/floatworks/pettycash/ledger"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		email TEXT,
		first_name TEXT,
		last_name TEXT,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'custodian',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		description TEXT NOT NULL,
		amount TEXT NOT NULL,
		received_by TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		receipt_url TEXT,
		receipt_file_name TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		submitted_by TEXT NOT NULL REFERENCES users(id),
		approved_by TEXT REFERENCES users(id),
		approved_at TEXT,
		comments TEXT,
		running_balance TEXT,
		entry_seq INTEGER,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_status
		ON transactions(status);
	CREATE INDEX IF NOT EXISTS idx_transactions_submitted_by
		ON transactions(submitted_by);
	CREATE INDEX IF NOT EXISTS idx_transactions_created_at
		ON transactions(created_at DESC);

	-- The ledger chain must stay dense and collision-free: two entries
	-- can never share a sequence number.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_entry_seq
		ON transactions(entry_seq) WHERE entry_seq IS NOT NULL;

	CREATE TABLE IF NOT EXISTS replenishment_requests (
		id TEXT PRIMARY KEY,
		requested_amount TEXT NOT NULL,
		reason TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		requested_by TEXT NOT NULL REFERENCES users(id),
		approved_by TEXT REFERENCES users(id),
		approved_at TEXT,
		comments TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_replenishments_status
		ON replenishment_requests(status);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_by TEXT NOT NULL REFERENCES users(id),
		updated_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx, so the query helpers
// below serve the plain store and the transactional view alike.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// TRANSACTIONS (ledger.Store interface)
// =============================================================================

func (s *Store) InsertTransaction(ctx context.Context, tx *ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertTransaction(ctx, s.db, tx)
}

func insertTransaction(ctx context.Context, db dbtx, tx *ledger.Transaction) error {
	query := `
		INSERT INTO transactions
		(id, date, description, amount, received_by, payment_method,
		 receipt_url, receipt_file_name, status, submitted_by, approved_by,
		 approved_at, comments, running_balance, entry_seq, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		tx.ID,
		tx.Date.UTC().Format(time.RFC3339),
		tx.Description,
		tx.Amount.String(),
		tx.ReceivedBy,
		string(tx.PaymentMethod),
		nullString(tx.ReceiptURL),
		nullString(tx.ReceiptFileName),
		string(tx.Status),
		tx.SubmittedBy,
		nullString(tx.ApprovedBy),
		nullTime(tx.ApprovedAt),
		nullString(tx.Comments),
		nullDecimal(tx.RunningBalance),
		nullInt(tx.EntrySeq),
		tx.CreatedAt.UTC().Format(time.RFC3339),
		tx.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("%w: insert transaction: %v", ledger.ErrPersistence, err)
	}
	return nil
}

const transactionColumns = `
	id, date, description, amount, received_by, payment_method,
	receipt_url, receipt_file_name, status, submitted_by, approved_by,
	approved_at, comments, running_balance, entry_seq, created_at, updated_at
`

func (s *Store) GetTransaction(ctx context.Context, id string) (*ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getTransaction(ctx, s.db, id)
}

func getTransaction(ctx context.Context, db dbtx, id string) (*ledger.Transaction, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT"+transactionColumns+"FROM transactions WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("%w: get transaction: %v", ledger.ErrPersistence, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	tx, err := scanTransaction(rows)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (s *Store) ListTransactions(ctx context.Context, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listTransactions(ctx, s.db, f)
}

func listTransactions(ctx context.Context, db dbtx, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.SubmittedBy != "" {
		where = append(where, "submitted_by = ?")
		args = append(args, f.SubmittedBy)
	}

	query := "SELECT" + transactionColumns + "FROM transactions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	// SQLite needs a LIMIT clause before OFFSET; -1 means unbounded.
	limit := f.Limit
	if limit <= 0 {
		limit = -1
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, f.Offset)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list transactions: %v", ledger.ErrPersistence, err)
	}
	defer rows.Close()

	var result []ledger.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, tx)
	}
	return result, rows.Err()
}

func (s *Store) UpdateTransactionDecision(ctx context.Context, tx *ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateTransactionDecision(ctx, s.db, tx)
}

func updateTransactionDecision(ctx context.Context, db dbtx, tx *ledger.Transaction) error {
	query := `
		UPDATE transactions
		SET status = ?, approved_by = ?, approved_at = ?, comments = ?,
		    running_balance = ?, entry_seq = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := db.ExecContext(ctx, query,
		string(tx.Status),
		nullString(tx.ApprovedBy),
		nullTime(tx.ApprovedAt),
		nullString(tx.Comments),
		nullDecimal(tx.RunningBalance),
		nullInt(tx.EntrySeq),
		tx.UpdatedAt.UTC().Format(time.RFC3339),
		tx.ID,
	)
	if err != nil {
		return fmt.Errorf("%w: update transaction decision: %v", ledger.ErrPersistence, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ledger.NotFoundError{Kind: "transaction", ID: tx.ID}
	}
	return nil
}

func scanTransaction(rows *sql.Rows) (ledger.Transaction, error) {
	var (
		tx                               ledger.Transaction
		date, createdAt, updatedAt       string
		amount, status, method           string
		receiptURL, receiptName          sql.NullString
		approvedBy, approvedAt, comments sql.NullString
		runningBalance                   sql.NullString
		entrySeq                         sql.NullInt64
	)

	err := rows.Scan(
		&tx.ID, &date, &tx.Description, &amount, &tx.ReceivedBy, &method,
		&receiptURL, &receiptName, &status, &tx.SubmittedBy, &approvedBy,
		&approvedAt, &comments, &runningBalance, &entrySeq, &createdAt, &updatedAt,
	)
	if err != nil {
		return tx, fmt.Errorf("%w: scan transaction: %v", ledger.ErrPersistence, err)
	}

	tx.Date, _ = time.Parse(time.RFC3339, date)
	tx.Amount = ledger.MustParseDecimal(amount)
	tx.PaymentMethod = ledger.PaymentMethod(method)
	tx.ReceiptURL = receiptURL.String
	tx.ReceiptFileName = receiptName.String
	tx.Status = ledger.Status(status)
	tx.ApprovedBy = approvedBy.String
	tx.Comments = comments.String
	tx.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	tx.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	if approvedAt.Valid {
		t, _ := time.Parse(time.RFC3339, approvedAt.String)
		tx.ApprovedAt = &t
	}
	if runningBalance.Valid {
		d := ledger.MustParseDecimal(runningBalance.String)
		tx.RunningBalance = &d
	}
	if entrySeq.Valid {
		seq := entrySeq.Int64
		tx.EntrySeq = &seq
	}
	return tx, nil
}

// =============================================================================
// REPLENISHMENT REQUESTS
// =============================================================================

func (s *Store) InsertReplenishment(ctx context.Context, r *ledger.ReplenishmentRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertReplenishment(ctx, s.db, r)
}

func insertReplenishment(ctx context.Context, db dbtx, r *ledger.ReplenishmentRequest) error {
	query := `
		INSERT INTO replenishment_requests
		(id, requested_amount, reason, status, requested_by, approved_by,
		 approved_at, comments, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		r.ID,
		r.RequestedAmount.String(),
		r.Reason,
		string(r.Status),
		r.RequestedBy,
		nullString(r.ApprovedBy),
		nullTime(r.ApprovedAt),
		nullString(r.Comments),
		r.CreatedAt.UTC().Format(time.RFC3339),
		r.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("%w: insert replenishment: %v", ledger.ErrPersistence, err)
	}
	return nil
}

const replenishmentColumns = `
	id, requested_amount, reason, status, requested_by, approved_by,
	approved_at, comments, created_at, updated_at
`

func (s *Store) GetReplenishment(ctx context.Context, id string) (*ledger.ReplenishmentRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getReplenishment(ctx, s.db, id)
}

func getReplenishment(ctx context.Context, db dbtx, id string) (*ledger.ReplenishmentRequest, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT"+replenishmentColumns+"FROM replenishment_requests WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("%w: get replenishment: %v", ledger.ErrPersistence, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	r, err := scanReplenishment(rows)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) ListReplenishments(ctx context.Context, status ledger.Status) ([]ledger.ReplenishmentRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listReplenishments(ctx, s.db, status)
}

func listReplenishments(ctx context.Context, db dbtx, status ledger.Status) ([]ledger.ReplenishmentRequest, error) {
	query := "SELECT" + replenishmentColumns + "FROM replenishment_requests"
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list replenishments: %v", ledger.ErrPersistence, err)
	}
	defer rows.Close()

	var result []ledger.ReplenishmentRequest
	for rows.Next() {
		r, err := scanReplenishment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func (s *Store) UpdateReplenishmentDecision(ctx context.Context, r *ledger.ReplenishmentRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateReplenishmentDecision(ctx, s.db, r)
}

func updateReplenishmentDecision(ctx context.Context, db dbtx, r *ledger.ReplenishmentRequest) error {
	query := `
		UPDATE replenishment_requests
		SET status = ?, approved_by = ?, approved_at = ?, comments = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := db.ExecContext(ctx, query,
		string(r.Status),
		nullString(r.ApprovedBy),
		nullTime(r.ApprovedAt),
		nullString(r.Comments),
		r.UpdatedAt.UTC().Format(time.RFC3339),
		r.ID,
	)
	if err != nil {
		return fmt.Errorf("%w: update replenishment decision: %v", ledger.ErrPersistence, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ledger.NotFoundError{Kind: "replenishment request", ID: r.ID}
	}
	return nil
}

func scanReplenishment(rows *sql.Rows) (ledger.ReplenishmentRequest, error) {
	var (
		r                                ledger.ReplenishmentRequest
		amount, status                   string
		createdAt, updatedAt             string
		approvedBy, approvedAt, comments sql.NullString
	)

	err := rows.Scan(
		&r.ID, &amount, &r.Reason, &status, &r.RequestedBy,
		&approvedBy, &approvedAt, &comments, &createdAt, &updatedAt,
	)
	if err != nil {
		return r, fmt.Errorf("%w: scan replenishment: %v", ledger.ErrPersistence, err)
	}

	r.RequestedAmount = ledger.MustParseDecimal(amount)
	r.Status = ledger.Status(status)
	r.ApprovedBy = approvedBy.String
	r.Comments = comments.String
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	r.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if approvedAt.Valid {
		t, _ := time.Parse(time.RFC3339, approvedAt.String)
		r.ApprovedAt = &t
	}
	return r, nil
}

// =============================================================================
// LEDGER READS
// =============================================================================

func (s *Store) LatestEntry(ctx context.Context) (decimal.Decimal, int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return latestEntry(ctx, s.db)
}

func latestEntry(ctx context.Context, db dbtx) (decimal.Decimal, int64, bool, error) {
	var (
		balance string
		seq     int64
	)
	err := db.QueryRowContext(ctx, `
		SELECT running_balance, entry_seq FROM transactions
		WHERE entry_seq IS NOT NULL
		ORDER BY entry_seq DESC
		LIMIT 1
	`).Scan(&balance, &seq)
	if err == sql.ErrNoRows {
		return decimal.Zero, 0, false, nil
	}
	if err != nil {
		return decimal.Zero, 0, false, fmt.Errorf("%w: latest entry: %v", ledger.ErrPersistence, err)
	}
	return ledger.MustParseDecimal(balance), seq, true, nil
}

func (s *Store) TransactionStats(ctx context.Context, monthStart time.Time) (ledger.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return transactionStats(ctx, s.db, monthStart)
}

func transactionStats(ctx context.Context, db dbtx, monthStart time.Time) (ledger.Stats, error) {
	stats := ledger.Stats{
		CurrentBalance:     decimal.Zero,
		MonthlyTotal:       decimal.Zero,
		AverageTransaction: decimal.Zero,
	}

	balance, _, ok, err := latestEntry(ctx, db)
	if err != nil {
		return stats, err
	}
	if ok {
		stats.CurrentBalance = balance
	}

	err = db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE status = 'pending'",
	).Scan(&stats.PendingCount)
	if err != nil {
		return stats, fmt.Errorf("%w: pending count: %v", ledger.ErrPersistence, err)
	}

	// Aggregates over the approved subset. These are presentational
	// figures; the exact chain lives in running_balance, so REAL casts
	// are acceptable here.
	var (
		total   int
		avg     sql.NullFloat64
		monthly sql.NullFloat64
	)
	err = db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       AVG(ABS(CAST(amount AS REAL))),
		       SUM(CASE WHEN CAST(amount AS REAL) < 0 AND date >= ?
		                THEN ABS(CAST(amount AS REAL)) ELSE 0 END)
		FROM transactions
		WHERE status = 'approved'
	`, monthStart.UTC().Format(time.RFC3339)).Scan(&total, &avg, &monthly)
	if err != nil {
		return stats, fmt.Errorf("%w: approved aggregates: %v", ledger.ErrPersistence, err)
	}

	stats.TotalTransactions = total
	if avg.Valid {
		stats.AverageTransaction = decimal.NewFromFloat(avg.Float64).Round(2)
	}
	if monthly.Valid {
		stats.MonthlyTotal = decimal.NewFromFloat(monthly.Float64).Round(2)
	}
	return stats, nil
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction. The store's write
// lock is held for the duration, so the transactional view performs no
// locking of its own.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", ledger.ErrPersistence, err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ledger.ErrPersistence, err)
	}
	return nil
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) InsertTransaction(ctx context.Context, tx *ledger.Transaction) error {
	return insertTransaction(ctx, ts.tx, tx)
}

func (ts *txStore) GetTransaction(ctx context.Context, id string) (*ledger.Transaction, error) {
	return getTransaction(ctx, ts.tx, id)
}

func (ts *txStore) ListTransactions(ctx context.Context, f ledger.TransactionFilter) ([]ledger.Transaction, error) {
	return listTransactions(ctx, ts.tx, f)
}

func (ts *txStore) UpdateTransactionDecision(ctx context.Context, tx *ledger.Transaction) error {
	return updateTransactionDecision(ctx, ts.tx, tx)
}

func (ts *txStore) InsertReplenishment(ctx context.Context, r *ledger.ReplenishmentRequest) error {
	return insertReplenishment(ctx, ts.tx, r)
}

func (ts *txStore) GetReplenishment(ctx context.Context, id string) (*ledger.ReplenishmentRequest, error) {
	return getReplenishment(ctx, ts.tx, id)
}

func (ts *txStore) ListReplenishments(ctx context.Context, status ledger.Status) ([]ledger.ReplenishmentRequest, error) {
	return listReplenishments(ctx, ts.tx, status)
}

func (ts *txStore) UpdateReplenishmentDecision(ctx context.Context, r *ledger.ReplenishmentRequest) error {
	return updateReplenishmentDecision(ctx, ts.tx, r)
}

func (ts *txStore) LatestEntry(ctx context.Context) (decimal.Decimal, int64, bool, error) {
	return latestEntry(ctx, ts.tx)
}

func (ts *txStore) TransactionStats(ctx context.Context, monthStart time.Time) (ledger.Stats, error) {
	return transactionStats(ctx, ts.tx, monthStart)
}

// =============================================================================
// USERS (ledger.UserStore interface)
// =============================================================================

const userColumns = `
	id, username, email, first_name, last_name, password_hash, role,
	created_at, updated_at
`

func (s *Store) CreateUser(ctx context.Context, u *ledger.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO users
		(id, username, email, first_name, last_name, password_hash, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		u.ID, u.Username, nullString(u.Email), nullString(u.FirstName),
		nullString(u.LastName), u.PasswordHash, string(u.Role),
		u.CreatedAt.UTC().Format(time.RFC3339),
		u.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("%w: create user: %v", ledger.ErrPersistence, err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*ledger.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryUser(ctx, "SELECT"+userColumns+"FROM users WHERE id = ?", id)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*ledger.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryUser(ctx, "SELECT"+userColumns+"FROM users WHERE username = ?", username)
}

func (s *Store) queryUser(ctx context.Context, query string, arg any) (*ledger.User, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("%w: query user: %v", ledger.ErrPersistence, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	u, err := scanUser(rows)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]ledger.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT"+userColumns+"FROM users ORDER BY username")
	if err != nil {
		return nil, fmt.Errorf("%w: list users: %v", ledger.ErrPersistence, err)
	}
	defer rows.Close()

	var users []ledger.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserRole(ctx context.Context, id string, role ledger.Role) (*ledger.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET role = ?, updated_at = ? WHERE id = ?",
		string(role), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return nil, fmt.Errorf("%w: update user role: %v", ledger.ErrPersistence, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, &ledger.NotFoundError{Kind: "user", ID: id}
	}
	return s.queryUser(ctx, "SELECT"+userColumns+"FROM users WHERE id = ?", id)
}

func scanUser(rows *sql.Rows) (ledger.User, error) {
	var (
		u                    ledger.User
		email, first, last   sql.NullString
		role                 string
		createdAt, updatedAt string
	)
	err := rows.Scan(&u.ID, &u.Username, &email, &first, &last,
		&u.PasswordHash, &role, &createdAt, &updatedAt)
	if err != nil {
		return u, fmt.Errorf("%w: scan user: %v", ledger.ErrPersistence, err)
	}
	u.Email = email.String
	u.FirstName = first.String
	u.LastName = last.String
	u.Role = ledger.Role(role)
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	u.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return u, nil
}

// =============================================================================
// SETTINGS (ledger.SettingStore interface)
// =============================================================================

func (s *Store) GetSetting(ctx context.Context, key string) (*ledger.Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		setting   ledger.Setting
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT key, value, updated_by, updated_at FROM settings WHERE key = ?",
		key,
	).Scan(&setting.Key, &setting.Value, &setting.UpdatedBy, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get setting: %v", ledger.ErrPersistence, err)
	}
	setting.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &setting, nil
}

func (s *Store) SetSetting(ctx context.Context, key, value, updatedBy string) (*ledger.Setting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	query := `
		INSERT INTO settings (key, value, updated_by, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_by = excluded.updated_by,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, key, value, updatedBy, now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("%w: set setting: %v", ledger.ErrPersistence, err)
	}
	return &ledger.Setting{Key: key, Value: value, UpdatedBy: updatedBy, UpdatedAt: now}, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullInt(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}
