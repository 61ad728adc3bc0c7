package domain

import "time"

// IPNStatus is the disposition of a recorded PayPal notification.
type IPNStatus string

const (
	IPNStatusNew                IPNStatus = "New"
	IPNStatusVerificationFailed IPNStatus = "Verification Failed"
	IPNStatusPaymentIncomplete  IPNStatus = "Payment Incomplete"
	IPNStatusInvalidReceiver    IPNStatus = "Invalid Receiver"
	IPNStatusInvalidCurrency    IPNStatus = "Invalid Currency"
	IPNStatusDuplicate          IPNStatus = "Duplicate"
	IPNStatusUnmatchedMember    IPNStatus = "Accepted, Unmatched Member"
	IPNStatusMemberDues         IPNStatus = "Accepted, Member Dues"
	IPNStatusUnmatchedPurchase  IPNStatus = "Accepted, Unmatched Purchase"
)

// Terminal reports whether s is a final disposition. Only New is not.
func (s IPNStatus) Terminal() bool {
	switch s {
	case IPNStatusVerificationFailed,
		IPNStatusPaymentIncomplete,
		IPNStatusInvalidReceiver,
		IPNStatusInvalidCurrency,
		IPNStatusDuplicate,
		IPNStatusUnmatchedMember,
		IPNStatusMemberDues,
		IPNStatusUnmatchedPurchase:
		return true
	}
	return false
}

// CanTransition reports whether a recorded notification may move from one
// status to another. A record is written as New and settles exactly once.
func CanTransition(from, to IPNStatus) bool {
	return from == IPNStatusNew && to.Terminal()
}

// IPN is one recorded notification delivery, dupes and rejects included.
type IPN struct {
	ID        string
	Data      string // raw url-encoded payload, stored verbatim
	Status    IPNStatus
	CreatedAt time.Time
}
