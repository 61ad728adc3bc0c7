package usecase

import (
	"context"

	"github.com/protodarkstar/spaceport/internal/domain"
	"github.com/protodarkstar/spaceport/internal/paypal"
)

// Verifier confirms a notification really came from the processor. Tests
// supply a canned fake; production uses paypal.Client.
type Verifier interface {
	Verify(ctx context.Context, n paypal.Notification) bool
}

// Store is the persistence surface the IPN engine needs. The usecase depends
// on this interface, not on the concrete sqlite repository.
type Store interface {
	RecordIPN(ctx context.Context, id, data string) (*domain.IPN, error)
	UpdateIPNStatus(ctx context.Context, id string, to domain.IPNStatus) error
	TxnExists(ctx context.Context, paypalTxnID string) (bool, error)
	InsertTransaction(ctx context.Context, t *domain.Transaction) error
	HintByAccount(ctx context.Context, account string) (*domain.PayPalHint, error)
	MemberByID(ctx context.Context, id int64) (*domain.Member, error)
	TrainingByID(ctx context.Context, id int64) (*domain.Training, error)
	ConfirmTraining(ctx context.Context, id int64) error
	TallyMembershipMonths(ctx context.Context, memberID int64) error
}
