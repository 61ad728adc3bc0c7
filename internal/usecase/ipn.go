package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"

	"github.com/google/uuid"

	"github.com/protodarkstar/spaceport/internal/domain"
	"github.com/protodarkstar/spaceport/internal/paypal"
	"github.com/protodarkstar/spaceport/internal/repository"
)

// IPNUsecase is the notification reconciliation engine: an ordered chain of
// authenticity, integrity, and business-rule checks over one inbound IPN.
// It runs synchronously inside the delivery handler; PayPal blocks on the
// response, so there is no deferred work here.
type IPNUsecase struct {
	store         Store
	verifier      Verifier
	receiverEmail string
	currency      string
}

func NewIPNUsecase(store Store, verifier Verifier, receiverEmail, currency string) *IPNUsecase {
	return &IPNUsecase{
		store:         store,
		verifier:      verifier,
		receiverEmail: receiverEmail,
		currency:      currency,
	}
}

// Result reports how one delivery settled.
type Result struct {
	IPNID       string
	Status      domain.IPNStatus
	Transaction *domain.Transaction
}

// Accepted reports whether the delivery produced a transaction.
func (r *Result) Accepted() bool { return r.Transaction != nil }

// Process records, verifies, and classifies one inbound notification. Every
// delivery gets a ledger record before any validation runs; every rejection
// settles that record with a terminal status and returns a nil-transaction
// Result rather than an error. Errors are reserved for malformed payload
// values and storage failures.
func (u *IPNUsecase) Process(ctx context.Context, values url.Values) (*Result, error) {
	n := paypal.NewNotification(values)

	rec, err := u.store.RecordIPN(ctx, uuid.New().String(), n.Encode())
	if err != nil {
		return nil, fmt.Errorf("record ipn: %w", err)
	}

	if !u.verifier.Verify(ctx, n) {
		log.Printf("ipn %s: verification failed", rec.ID)
		return u.settle(ctx, rec, domain.IPNStatusVerificationFailed)
	}

	if n.PaymentStatus() != paypal.PaymentCompleted {
		log.Printf("ipn %s: payment not yet completed, ignoring", rec.ID)
		return u.settle(ctx, rec, domain.IPNStatusPaymentIncomplete)
	}

	if n.ReceiverEmail() != u.receiverEmail {
		log.Printf("ipn %s: payment not for us, ignoring", rec.ID)
		return u.settle(ctx, rec, domain.IPNStatusInvalidReceiver)
	}

	if n.Currency() != u.currency {
		log.Printf("ipn %s: payment currency invalid, ignoring", rec.ID)
		return u.settle(ctx, rec, domain.IPNStatusInvalidCurrency)
	}

	exists, err := u.store.TxnExists(ctx, n.TxnID())
	if err != nil {
		return nil, fmt.Errorf("duplicate check: %w", err)
	}
	if exists {
		log.Printf("ipn %s: duplicate transaction, ignoring", rec.ID)
		return u.settle(ctx, rec, domain.IPNStatusDuplicate)
	}

	member, training, err := u.lookups(ctx, n)
	if err != nil {
		return nil, err
	}

	d, err := Decide(n, member, training)
	if err != nil {
		// malformed date or amount; the ledger record stays New and the
		// caller rejects the request
		return nil, err
	}

	return u.apply(ctx, rec, d)
}

// lookups resolves the member behind the payer id hint and, if the custom
// field names one, the training registration.
func (u *IPNUsecase) lookups(ctx context.Context, n paypal.Notification) (*domain.Member, *domain.Training, error) {
	hint, err := u.store.HintByAccount(ctx, n.PayerID())
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("hint lookup: %w", err)
	}

	member, err := u.store.MemberByID(ctx, hint.MemberID)
	if err != nil {
		return nil, nil, fmt.Errorf("member lookup: %w", err)
	}

	var training *domain.Training
	if id, ok := n.TrainingID(); ok {
		training, err = u.store.TrainingByID(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			training = nil
		} else if err != nil {
			return nil, nil, fmt.Errorf("training lookup: %w", err)
		}
	}

	return member, training, nil
}

// apply persists a decision: transaction first (so a lost duplicate race
// settles as Duplicate), then the training confirmation, then the ledger
// status, then the membership tally.
func (u *IPNUsecase) apply(ctx context.Context, rec *domain.IPN, d Decision) (*Result, error) {
	if d.Tx != nil {
		if err := u.store.InsertTransaction(ctx, d.Tx); err != nil {
			if errors.Is(err, repository.ErrDuplicateTxn) {
				log.Printf("ipn %s: lost duplicate insert race, ignoring", rec.ID)
				return u.settle(ctx, rec, domain.IPNStatusDuplicate)
			}
			return nil, fmt.Errorf("insert transaction: %w", err)
		}
	}

	if d.ConfirmTrainingID != 0 {
		if err := u.store.ConfirmTraining(ctx, d.ConfirmTrainingID); err != nil {
			return nil, fmt.Errorf("confirm training %d: %w", d.ConfirmTrainingID, err)
		}
		log.Printf("ipn %s: amount valid for training cost, id: %d", rec.ID, d.ConfirmTrainingID)
	}

	if err := u.store.UpdateIPNStatus(ctx, rec.ID, d.Status); err != nil {
		return nil, fmt.Errorf("update ipn status: %w", err)
	}

	if d.TallyMemberID != 0 {
		if err := u.store.TallyMembershipMonths(ctx, d.TallyMemberID); err != nil {
			return nil, fmt.Errorf("tally membership months: %w", err)
		}
	}

	return &Result{IPNID: rec.ID, Status: d.Status, Transaction: d.Tx}, nil
}

func (u *IPNUsecase) settle(ctx context.Context, rec *domain.IPN, status domain.IPNStatus) (*Result, error) {
	if err := u.store.UpdateIPNStatus(ctx, rec.ID, status); err != nil {
		return nil, fmt.Errorf("update ipn status: %w", err)
	}
	return &Result{IPNID: rec.ID, Status: status}, nil
}
