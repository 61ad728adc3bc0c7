package domain

import "time"

type ReportType string

const (
	ReportNone              ReportType = ""
	ReportUnmatchedMember   ReportType = "Unmatched Member"
	ReportUnmatchedPurchase ReportType = "Unmatched Purchase"
)

// Transaction is one reconciled payment. Immutable once persisted; the
// PayPalTxnID column carries a UNIQUE constraint and is the idempotency key.
type Transaction struct {
	ID              int64
	AccountType     string
	AmountMinor     int64
	PaymentDate     time.Time
	InfoSource      string
	PaymentMethod   string
	PayPalPayerID   string
	PayPalTxnID     string
	ReferenceNumber string
	Memo            string
	ReportMemo      string
	ReportType      ReportType
	MemberID        *int64
	UserID          *int64
	// MembershipMonths is set only on dues transactions, which by the same
	// token never carry a ReportType.
	MembershipMonths int64
	CreatedAt        time.Time
}
