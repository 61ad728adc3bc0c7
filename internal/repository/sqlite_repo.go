package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/protodarkstar/spaceport/internal/domain"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrDuplicateTxn surfaces the UNIQUE constraint on paypal_txn_id. The
	// constraint, not the application-level existence check, is the
	// authoritative idempotency guard under concurrent redelivery.
	ErrDuplicateTxn = errors.New("duplicate paypal txn id")

	// ErrBadStatusTransition means an IPN record already settled.
	ErrBadStatusTransition = errors.New("ipn status already settled")
)

type SQLiteRepo struct {
	db *sql.DB
}

func NewSQLiteRepo(dsn string) (*SQLiteRepo, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	db.Exec("PRAGMA foreign_keys = ON;")
	db.Exec("PRAGMA journal_mode = WAL;")
	db.Exec("PRAGMA busy_timeout = 5000;")

	r := &SQLiteRepo{db: db}
	if err := r.migrate(); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepo) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS ipns(
			id TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS members(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL,
			monthly_fees_minor INTEGER NOT NULL,
			is_paused INTEGER NOT NULL DEFAULT 0,
			start_date TEXT NOT NULL,
			expire_date TEXT,
			user_id INTEGER
		);

		CREATE TABLE IF NOT EXISTS paypal_hints(
			account TEXT PRIMARY KEY,
			member_id INTEGER NOT NULL REFERENCES members(id)
		);

		CREATE TABLE IF NOT EXISTS transactions(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_type TEXT NOT NULL,
			amount_minor INTEGER NOT NULL,
			payment_date TEXT NOT NULL,
			info_source TEXT NOT NULL,
			payment_method TEXT NOT NULL,
			paypal_payer_id TEXT NOT NULL,
			paypal_txn_id TEXT NOT NULL UNIQUE,
			reference_number TEXT NOT NULL,
			memo TEXT NOT NULL DEFAULT '',
			report_memo TEXT NOT NULL DEFAULT '',
			report_type TEXT NOT NULL DEFAULT '',
			member_id INTEGER REFERENCES members(id),
			user_id INTEGER,
			number_of_membership_months INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS sessions(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			course_name TEXT NOT NULL,
			cost_minor INTEGER NOT NULL,
			is_cancelled INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS trainings(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			attendance_status TEXT NOT NULL,
			session_id INTEGER REFERENCES sessions(id),
			user_id INTEGER,
			member_id INTEGER REFERENCES members(id)
		);

		CREATE INDEX IF NOT EXISTS idx_tx_member ON transactions(member_id);
		CREATE INDEX IF NOT EXISTS idx_tx_report_type ON transactions(report_type);
	`
	_, err := r.db.Exec(schema)
	return err
}

// RecordIPN appends a ledger record with status New. Every inbound delivery
// gets one, malformed and duplicate ones included.
func (r *SQLiteRepo) RecordIPN(ctx context.Context, id, data string) (*domain.IPN, error) {
	now := time.Now().UTC()
	q := `INSERT INTO ipns(id, data, status, created_at) VALUES(?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, q, id, data, string(domain.IPNStatusNew), now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}

	return &domain.IPN{ID: id, Data: data, Status: domain.IPNStatusNew, CreatedAt: now}, nil
}

// UpdateIPNStatus settles a ledger record. The conditional WHERE enforces the
// closed transition set: anything other than New -> terminal is rejected.
func (r *SQLiteRepo) UpdateIPNStatus(ctx context.Context, id string, to domain.IPNStatus) error {
	if !domain.CanTransition(domain.IPNStatusNew, to) {
		return ErrBadStatusTransition
	}

	q := `UPDATE ipns SET status = ? WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, q, string(to), id, string(domain.IPNStatusNew))
	if err != nil {
		return err
	}

	aff, _ := res.RowsAffected()
	if aff == 0 {
		cur, err := r.GetIPN(ctx, id)
		if err != nil {
			return err
		}
		if cur.Status != to {
			return ErrBadStatusTransition
		}
		// same terminal status twice is a no-op
	}
	return nil
}

func (r *SQLiteRepo) GetIPN(ctx context.Context, id string) (*domain.IPN, error) {
	q := `SELECT id, data, status, created_at FROM ipns WHERE id = ?`

	var ipn domain.IPN
	var status, createdStr string
	err := r.db.QueryRowContext(ctx, q, id).Scan(&ipn.ID, &ipn.Data, &status, &createdStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	ipn.Status = domain.IPNStatus(status)
	ipn.CreatedAt, err = time.Parse(time.RFC3339Nano, createdStr)
	if err != nil {
		return nil, fmt.Errorf("parse ipn created_at: %w", err)
	}
	return &ipn, nil
}

// TxnExists is the fast-path duplicate check; InsertTransaction's unique
// constraint is what actually guarantees the invariant.
func (r *SQLiteRepo) TxnExists(ctx context.Context, paypalTxnID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM transactions WHERE paypal_txn_id = ?`, paypalTxnID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *SQLiteRepo) InsertTransaction(ctx context.Context, t *domain.Transaction) error {
	q := `
		INSERT INTO transactions(
			account_type,
			amount_minor,
			payment_date,
			info_source,
			payment_method,
			paypal_payer_id,
			paypal_txn_id,
			reference_number,
			memo,
			report_memo,
			report_type,
			member_id,
			user_id,
			number_of_membership_months,
			created_at
		)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`

	t.CreatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(
		ctx, q,
		t.AccountType,
		t.AmountMinor,
		t.PaymentDate.UTC().Format(time.RFC3339Nano),
		t.InfoSource,
		t.PaymentMethod,
		t.PayPalPayerID,
		t.PayPalTxnID,
		t.ReferenceNumber,
		t.Memo,
		t.ReportMemo,
		string(t.ReportType),
		t.MemberID,
		t.UserID,
		t.MembershipMonths,
		t.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateTxn
		}
		return err
	}

	t.ID, _ = res.LastInsertId()
	return nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

func (r *SQLiteRepo) GetTransactionByPayPalID(ctx context.Context, paypalTxnID string) (*domain.Transaction, error) {
	q := selectTxQuery + ` WHERE paypal_txn_id = ?`
	row := r.db.QueryRowContext(ctx, q, paypalTxnID)
	return scanTx(row)
}

type TxFilter struct {
	MemberID    *int64
	ReportType  *domain.ReportType
	PayPalTxnID string
}

func (r *SQLiteRepo) ListTransactions(ctx context.Context, f TxFilter, limit, offset int) ([]domain.Transaction, error) {
	q := selectTxQuery + ` WHERE 1 = 1`
	args := []any{}

	if f.MemberID != nil {
		q += " AND member_id = ?"
		args = append(args, *f.MemberID)
	}

	if f.ReportType != nil {
		q += " AND report_type = ?"
		args = append(args, string(*f.ReportType))
	}

	if f.PayPalTxnID != "" {
		q += " AND paypal_txn_id = ?"
		args = append(args, f.PayPalTxnID)
	}

	q += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Transaction
	for rows.Next() {
		t, err := scanTx(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *t)
	}
	return res, rows.Err()
}

const selectTxQuery = `
	SELECT
		id,
		account_type,
		amount_minor,
		payment_date,
		info_source,
		payment_method,
		paypal_payer_id,
		paypal_txn_id,
		reference_number,
		memo,
		report_memo,
		report_type,
		member_id,
		user_id,
		number_of_membership_months,
		created_at
	FROM transactions`

func scanTx(scanner interface {
	Scan(dest ...any) error
}) (*domain.Transaction, error) {
	var t domain.Transaction
	var reportType, dateStr, createdStr string

	if err := scanner.Scan(
		&t.ID,
		&t.AccountType,
		&t.AmountMinor,
		&dateStr,
		&t.InfoSource,
		&t.PaymentMethod,
		&t.PayPalPayerID,
		&t.PayPalTxnID,
		&t.ReferenceNumber,
		&t.Memo,
		&t.ReportMemo,
		&reportType,
		&t.MemberID,
		&t.UserID,
		&t.MembershipMonths,
		&createdStr,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}

	t.ReportType = domain.ReportType(reportType)

	var err error
	t.PaymentDate, err = time.Parse(time.RFC3339Nano, dateStr)
	if err != nil {
		return nil, fmt.Errorf("parse payment date: %w", err)
	}
	t.CreatedAt, err = time.Parse(time.RFC3339Nano, createdStr)
	if err != nil {
		return nil, fmt.Errorf("parse created at: %w", err)
	}
	return &t, nil
}

func (r *SQLiteRepo) CreateMember(ctx context.Context, m *domain.Member) error {
	q := `
		INSERT INTO members(first_name, last_name, monthly_fees_minor, is_paused, start_date, expire_date, user_id)
		VALUES(?, ?, ?, ?, ?, ?, ?)
	`

	var expire any
	if m.ExpireDate != nil {
		expire = m.ExpireDate.UTC().Format(time.RFC3339Nano)
	}

	res, err := r.db.ExecContext(ctx, q,
		m.FirstName, m.LastName, m.MonthlyFeesMinor, boolInt(m.IsPaused),
		m.StartDate.UTC().Format(time.RFC3339Nano), expire, m.UserID,
	)
	if err != nil {
		return err
	}
	m.ID, _ = res.LastInsertId()
	return nil
}

func (r *SQLiteRepo) MemberByID(ctx context.Context, id int64) (*domain.Member, error) {
	q := `
		SELECT id, first_name, last_name, monthly_fees_minor, is_paused, start_date, expire_date, user_id
		FROM members WHERE id = ?
	`

	var m domain.Member
	var paused int
	var startStr string
	var expireStr *string
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&m.ID, &m.FirstName, &m.LastName, &m.MonthlyFeesMinor, &paused, &startStr, &expireStr, &m.UserID,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	m.IsPaused = paused != 0
	m.StartDate, err = time.Parse(time.RFC3339Nano, startStr)
	if err != nil {
		return nil, fmt.Errorf("parse member start date: %w", err)
	}
	if expireStr != nil {
		exp, err := time.Parse(time.RFC3339Nano, *expireStr)
		if err != nil {
			return nil, fmt.Errorf("parse member expire date: %w", err)
		}
		m.ExpireDate = &exp
	}
	return &m, nil
}

// UpsertHint establishes a payer-id to member mapping. Hints are managed by
// the portal, not by the IPN engine; last write wins.
func (r *SQLiteRepo) UpsertHint(ctx context.Context, h *domain.PayPalHint) error {
	q := `
		INSERT INTO paypal_hints(account, member_id) VALUES(?, ?)
		ON CONFLICT(account) DO UPDATE SET member_id = excluded.member_id
	`
	_, err := r.db.ExecContext(ctx, q, h.Account, h.MemberID)
	return err
}

func (r *SQLiteRepo) HintByAccount(ctx context.Context, account string) (*domain.PayPalHint, error) {
	var h domain.PayPalHint
	err := r.db.QueryRowContext(ctx,
		`SELECT account, member_id FROM paypal_hints WHERE account = ?`, account,
	).Scan(&h.Account, &h.MemberID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *SQLiteRepo) CreateSession(ctx context.Context, s *domain.Session) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions(course_name, cost_minor, is_cancelled) VALUES(?, ?, ?)`,
		s.CourseName, s.CostMinor, boolInt(s.IsCancelled),
	)
	if err != nil {
		return err
	}
	s.ID, _ = res.LastInsertId()
	return nil
}

func (r *SQLiteRepo) CreateTraining(ctx context.Context, t *domain.Training) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO trainings(attendance_status, session_id, user_id, member_id) VALUES(?, ?, ?, ?)`,
		string(t.AttendanceStatus), t.SessionID, t.UserID, t.MemberID,
	)
	if err != nil {
		return err
	}
	t.ID, _ = res.LastInsertId()
	return nil
}

// TrainingByID loads a registration with its session, if any.
func (r *SQLiteRepo) TrainingByID(ctx context.Context, id int64) (*domain.Training, error) {
	q := `
		SELECT t.id, t.attendance_status, t.session_id, t.user_id, t.member_id,
		       s.id, s.course_name, s.cost_minor, s.is_cancelled
		FROM trainings t
		LEFT JOIN sessions s ON s.id = t.session_id
		WHERE t.id = ?
	`

	var t domain.Training
	var status string
	var sid *int64
	var courseName *string
	var costMinor *int64
	var cancelled *int
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&t.ID, &status, &t.SessionID, &t.UserID, &t.MemberID,
		&sid, &courseName, &costMinor, &cancelled,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	t.AttendanceStatus = domain.AttendanceStatus(status)
	if sid != nil {
		t.Session = &domain.Session{
			ID:          *sid,
			CourseName:  *courseName,
			CostMinor:   *costMinor,
			IsCancelled: *cancelled != 0,
		}
	}
	return &t, nil
}

// ConfirmTraining flips a registration from waiting-for-payment to
// confirmed. The conditional WHERE means it can only happen once.
func (r *SQLiteRepo) ConfirmTraining(ctx context.Context, id int64) error {
	q := `UPDATE trainings SET attendance_status = ? WHERE id = ? AND attendance_status = ?`
	res, err := r.db.ExecContext(ctx, q,
		string(domain.AttendanceConfirmed), id, string(domain.AttendanceWaitingForPayment),
	)
	if err != nil {
		return err
	}

	aff, _ := res.RowsAffected()
	if aff == 0 {
		return ErrNotFound
	}
	return nil
}

// TallyMembershipMonths recomputes a member's paid-up expiry from the sum of
// credited months, anchored at the membership start date.
func (r *SQLiteRepo) TallyMembershipMonths(ctx context.Context, memberID int64) error {
	var months int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(number_of_membership_months), 0) FROM transactions WHERE member_id = ?`,
		memberID,
	).Scan(&months)
	if err != nil {
		return err
	}

	m, err := r.MemberByID(ctx, memberID)
	if err != nil {
		return err
	}

	expire := m.StartDate.AddDate(0, int(months), 0)
	_, err = r.db.ExecContext(ctx,
		`UPDATE members SET expire_date = ? WHERE id = ?`,
		expire.UTC().Format(time.RFC3339Nano), memberID,
	)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
