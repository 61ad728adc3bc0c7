package domain

import "time"

// Member is a billing account. MonthlyFeesMinor is the recurring dues amount
// in cents; payments that are exact multiples of it credit whole months.
type Member struct {
	ID               int64
	FirstName        string
	LastName         string
	MonthlyFeesMinor int64
	IsPaused         bool
	StartDate        time.Time
	ExpireDate       *time.Time
	UserID           *int64
}

// PayPalHint maps a PayPal payer id to a member. Hints are established
// out-of-band (portal admin); account is the primary key, so at most one
// hint per payer id exists and resolution is deterministic.
type PayPalHint struct {
	Account  string
	MemberID int64
}

type AttendanceStatus string

const (
	AttendanceWaitingForPayment AttendanceStatus = "waiting for payment"
	AttendanceConfirmed         AttendanceStatus = "confirmed"
	AttendanceCancelled         AttendanceStatus = "cancelled"
)

// Session is a scheduled course session with a fixed fee.
type Session struct {
	ID          int64
	CourseName  string
	CostMinor   int64
	IsCancelled bool
}

// Training is one student's registration on a session. The IPN engine only
// ever moves it from waiting-for-payment to confirmed.
type Training struct {
	ID               int64
	AttendanceStatus AttendanceStatus
	SessionID        *int64
	Session          *Session
	UserID           *int64
	MemberID         *int64
}
