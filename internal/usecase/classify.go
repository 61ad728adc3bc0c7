package usecase

import (
	"fmt"

	"github.com/protodarkstar/spaceport/internal/domain"
	"github.com/protodarkstar/spaceport/internal/paypal"
)

const (
	accountTypePayPal = "PayPal"
	infoSourceIPN     = "PayPal IPN"
)

// Decision is the outcome of classifying one verified, validated
// notification: the ledger status to record, the transaction to persist (if
// any), and the side effects to apply alongside it.
type Decision struct {
	Status            domain.IPNStatus
	Tx                *domain.Transaction
	ConfirmTrainingID int64
	TallyMemberID     int64
}

// Decide classifies a notification that already passed verification,
// completion, receiver, currency, and duplicate checks. member is nil when
// no payment hint resolved; training is non-nil only when the custom field
// named a registration that exists. Pure apart from the clock-free parse of
// payload fields, so it unit-tests without storage.
func Decide(n paypal.Notification, member *domain.Member, training *domain.Training) (Decision, error) {
	tx, err := buildTx(n)
	if err != nil {
		return Decision{}, err
	}

	if member == nil {
		tx.ReportType = domain.ReportUnmatchedMember
		tx.ReportMemo = fmt.Sprintf("Cant link sender name, %s %s, email: %s, note: %s",
			n.FirstName(), n.LastName(), n.PayerEmail(), n.Custom())
		return Decision{Status: domain.IPNStatusUnmatchedMember, Tx: tx}, nil
	}

	if months := duesMonths(tx.AmountMinor, member.MonthlyFeesMinor); months > 0 {
		deal := ""
		if months == 11 {
			// the "12 for 11" deal: pay eleven months up front, get twelve
			months = 12
			deal = "12 for 11, "
		}

		tx.MemberID = &member.ID
		tx.UserID = member.UserID
		tx.MembershipMonths = months
		tx.Memo = fmt.Sprintf("%s%s %s - Membership, %s",
			deal, n.FirstName(), n.LastName(), n.PayerEmail())
		return Decision{
			Status:        domain.IPNStatusMemberDues,
			Tx:            tx,
			TallyMemberID: member.ID,
		}, nil
	}

	if training != nil && trainingPayable(training, member, tx.AmountMinor) {
		tx.MemberID = &member.ID
		tx.UserID = member.UserID
		tx.Memo = fmt.Sprintf("%s %s - %s Course, email: %s, session: %d, training: %d",
			n.FirstName(), n.LastName(), training.Session.CourseName,
			n.PayerEmail(), training.Session.ID, training.ID)
		return Decision{
			Status:            domain.IPNStatusMemberDues,
			Tx:                tx,
			ConfirmTrainingID: training.ID,
		}, nil
	}

	tx.MemberID = &member.ID
	tx.UserID = member.UserID
	tx.ReportType = domain.ReportUnmatchedPurchase
	tx.ReportMemo = fmt.Sprintf("Unknown payment reason, %s %s, email: %s, note: %s",
		n.FirstName(), n.LastName(), n.PayerEmail(), n.Custom())
	return Decision{Status: domain.IPNStatusUnmatchedPurchase, Tx: tx}, nil
}

// buildTx extracts the fields every transaction shares. The txn id doubles
// as reference number and as the unique key.
func buildTx(n paypal.Notification) (*domain.Transaction, error) {
	amount, err := domain.ParseAmountMinor(n.Gross())
	if err != nil {
		return nil, fmt.Errorf("gross amount %q: %w", n.Gross(), err)
	}

	date, err := paypal.ParseDate(n.PaymentDate())
	if err != nil {
		return nil, err
	}

	return &domain.Transaction{
		AccountType:     accountTypePayPal,
		AmountMinor:     amount,
		PaymentDate:     date,
		InfoSource:      infoSourceIPN,
		PaymentMethod:   n.PaymentType(),
		PayPalPayerID:   n.PayerID(),
		PayPalTxnID:     n.TxnID(),
		ReferenceNumber: n.TxnID(),
	}, nil
}

// duesMonths returns how many whole months of dues the amount covers, or 0
// if it is not an exact multiple. Integer arithmetic on minor units; a near
// multiple never passes.
func duesMonths(amountMinor, feesMinor int64) int64 {
	if feesMinor <= 0 || amountMinor <= 0 {
		return 0
	}
	if amountMinor%feesMinor != 0 {
		return 0
	}
	return amountMinor / feesMinor
}

// trainingPayable runs the training validation chain. Any failed check means
// no training match; the caller falls through to unmatched purchase.
func trainingPayable(t *domain.Training, member *domain.Member, amountMinor int64) bool {
	if t.AttendanceStatus != domain.AttendanceWaitingForPayment {
		return false
	}
	if t.Session == nil || t.Session.IsCancelled {
		return false
	}
	if t.Session.CostMinor != amountMinor {
		return false
	}
	if t.UserID == nil {
		return false
	}
	if t.MemberID == nil || *t.MemberID != member.ID {
		return false
	}
	return true
}
