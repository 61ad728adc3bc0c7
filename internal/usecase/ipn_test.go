package usecase_test

import (
	"context"
	"net/url"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/protodarkstar/spaceport/internal/domain"
	"github.com/protodarkstar/spaceport/internal/paypal"
	"github.com/protodarkstar/spaceport/internal/repository"
	"github.com/protodarkstar/spaceport/internal/usecase"
)

const (
	testReceiver = "seller@paypalsandbox.com"
	testCurrency = "USD"
)

type fakeVerifier struct {
	ok bool
}

func (f fakeVerifier) Verify(ctx context.Context, n paypal.Notification) bool { return f.ok }

func newEngine(t *testing.T, verified bool) (*usecase.IPNUsecase, *repository.SQLiteRepo) {
	t.Helper()

	repo, err := repository.NewSQLiteRepo(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	uc := usecase.NewIPNUsecase(repo, fakeVerifier{ok: verified}, testReceiver, testCurrency)
	return uc, repo
}

// ipnValues builds a complete, valid IPN payload; overrides replace fields.
func ipnValues(overrides map[string]string) url.Values {
	v := url.Values{}
	v.Set("payment_status", "Completed")
	v.Set("receiver_email", testReceiver)
	v.Set("mc_currency", testCurrency)
	v.Set("mc_gross", "50.00")
	v.Set("payment_date", "18:30:30 Jan 25, 2021 PST")
	v.Set("payment_type", "instant")
	v.Set("payer_id", "PAYER1")
	v.Set("payer_email", "payer@example.com")
	v.Set("first_name", "First")
	v.Set("last_name", "Last")
	v.Set("txn_id", "TX1")

	for k, val := range overrides {
		if val == "" {
			v.Del(k)
			continue
		}
		v.Set(k, val)
	}
	return v
}

func seedMember(t *testing.T, repo *repository.SQLiteRepo, feesMinor int64) *domain.Member {
	t.Helper()

	userID := int64(42)
	m := &domain.Member{
		FirstName:        "First",
		LastName:         "Last",
		MonthlyFeesMinor: feesMinor,
		StartDate:        time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		UserID:           &userID,
	}
	require.NoError(t, repo.CreateMember(context.Background(), m))
	require.NoError(t, repo.UpsertHint(context.Background(), &domain.PayPalHint{Account: "PAYER1", MemberID: m.ID}))
	return m
}

func allTxs(t *testing.T, repo *repository.SQLiteRepo) []domain.Transaction {
	t.Helper()

	txs, err := repo.ListTransactions(context.Background(), repository.TxFilter{}, 200, 0)
	require.NoError(t, err)
	return txs
}

func ledgerStatus(t *testing.T, repo *repository.SQLiteRepo, id string) domain.IPNStatus {
	t.Helper()

	ipn, err := repo.GetIPN(context.Background(), id)
	require.NoError(t, err)
	return ipn.Status
}

func TestProcess_VerificationFailed(t *testing.T) {
	uc, repo := newEngine(t, false)
	seedMember(t, repo, 5000)

	res, err := uc.Process(context.Background(), ipnValues(nil))
	require.NoError(t, err)

	assert.Equal(t, domain.IPNStatusVerificationFailed, res.Status)
	assert.False(t, res.Accepted())
	assert.Equal(t, domain.IPNStatusVerificationFailed, ledgerStatus(t, repo, res.IPNID))
	assert.Empty(t, allTxs(t, repo))
}

func TestProcess_RejectionChain(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]string
		want      domain.IPNStatus
	}{
		{"pending payment", map[string]string{"payment_status": "Pending"}, domain.IPNStatusPaymentIncomplete},
		{"missing payment status", map[string]string{"payment_status": ""}, domain.IPNStatusPaymentIncomplete},
		{"wrong receiver", map[string]string{"receiver_email": "someone@else.com"}, domain.IPNStatusInvalidReceiver},
		{"wrong currency", map[string]string{"mc_currency": "EUR"}, domain.IPNStatusInvalidCurrency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc, repo := newEngine(t, true)
			seedMember(t, repo, 5000)

			res, err := uc.Process(context.Background(), ipnValues(tt.overrides))
			require.NoError(t, err)

			assert.Equal(t, tt.want, res.Status)
			assert.Equal(t, tt.want, ledgerStatus(t, repo, res.IPNID))
			assert.Empty(t, allTxs(t, repo))
		})
	}
}

// A currency mismatch must short-circuit before the duplicate check: a
// payload that is both the wrong currency and a known txn id settles as
// Invalid Currency, not Duplicate.
func TestProcess_CurrencyCheckedBeforeDuplicate(t *testing.T) {
	uc, repo := newEngine(t, true)
	seedMember(t, repo, 5000)

	res, err := uc.Process(context.Background(), ipnValues(nil))
	require.NoError(t, err)
	require.Equal(t, domain.IPNStatusMemberDues, res.Status)

	res, err = uc.Process(context.Background(), ipnValues(map[string]string{"mc_currency": "EUR"}))
	require.NoError(t, err)
	assert.Equal(t, domain.IPNStatusInvalidCurrency, res.Status)
}

func TestProcess_DuplicateRedelivery(t *testing.T) {
	uc, repo := newEngine(t, true)
	seedMember(t, repo, 5000)

	first, err := uc.Process(context.Background(), ipnValues(nil))
	require.NoError(t, err)
	require.True(t, first.Accepted())

	second, err := uc.Process(context.Background(), ipnValues(nil))
	require.NoError(t, err)

	assert.Equal(t, domain.IPNStatusDuplicate, second.Status)
	assert.False(t, second.Accepted())
	assert.Equal(t, domain.IPNStatusDuplicate, ledgerStatus(t, repo, second.IPNID))
	assert.Len(t, allTxs(t, repo), 1)
}

func TestProcess_UnmatchedMember(t *testing.T) {
	uc, repo := newEngine(t, true)
	// no member, no hint

	res, err := uc.Process(context.Background(), ipnValues(map[string]string{"custom": "for the cause"}))
	require.NoError(t, err)

	assert.Equal(t, domain.IPNStatusUnmatchedMember, res.Status)
	require.True(t, res.Accepted())

	txs := allTxs(t, repo)
	require.Len(t, txs, 1)
	tx := txs[0]
	assert.Equal(t, domain.ReportUnmatchedMember, tx.ReportType)
	assert.Nil(t, tx.MemberID)
	assert.Nil(t, tx.UserID)
	assert.Zero(t, tx.MembershipMonths)
	assert.Contains(t, tx.ReportMemo, "Cant link sender name, First Last")
	assert.Contains(t, tx.ReportMemo, "payer@example.com")
	assert.Contains(t, tx.ReportMemo, "for the cause")
}

func TestProcess_MemberDues(t *testing.T) {
	tests := []struct {
		name       string
		feesMinor  int64
		gross      string
		wantMonths int64
		wantDeal   bool
	}{
		{"one month", 5000, "50.00", 1, false},
		{"three months", 5000, "150.00", 3, false},
		{"eleven pays twelve", 5000, "550.00", 12, true},
		{"twelve months straight", 5000, "600.00", 12, false},
		{"odd dues amount", 5550, "111.00", 2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc, repo := newEngine(t, true)
			m := seedMember(t, repo, tt.feesMinor)

			res, err := uc.Process(context.Background(), ipnValues(map[string]string{"mc_gross": tt.gross}))
			require.NoError(t, err)

			assert.Equal(t, domain.IPNStatusMemberDues, res.Status)
			require.True(t, res.Accepted())

			txs := allTxs(t, repo)
			require.Len(t, txs, 1)
			tx := txs[0]
			assert.Equal(t, tt.wantMonths, tx.MembershipMonths)
			assert.Equal(t, domain.ReportNone, tx.ReportType)
			require.NotNil(t, tx.MemberID)
			assert.Equal(t, m.ID, *tx.MemberID)
			assert.Equal(t, m.UserID, tx.UserID)
			assert.Contains(t, tx.Memo, "First Last - Membership")
			if tt.wantDeal {
				assert.Contains(t, tx.Memo, "12 for 11, ")
			} else {
				assert.NotContains(t, tx.Memo, "12 for 11")
			}

			// dues also move the member's paid-up horizon
			got, err := repo.MemberByID(context.Background(), m.ID)
			require.NoError(t, err)
			require.NotNil(t, got.ExpireDate)
			assert.Equal(t, m.StartDate.AddDate(0, int(tt.wantMonths), 0), got.ExpireDate.UTC())
		})
	}
}

func TestProcess_UnmatchedPurchase(t *testing.T) {
	uc, repo := newEngine(t, true)
	m := seedMember(t, repo, 5000)

	res, err := uc.Process(context.Background(), ipnValues(map[string]string{
		"mc_gross": "75.00",
		"custom":   "not json at all",
	}))
	require.NoError(t, err)

	assert.Equal(t, domain.IPNStatusUnmatchedPurchase, res.Status)

	txs := allTxs(t, repo)
	require.Len(t, txs, 1)
	tx := txs[0]
	assert.Equal(t, domain.ReportUnmatchedPurchase, tx.ReportType)
	require.NotNil(t, tx.MemberID)
	assert.Equal(t, m.ID, *tx.MemberID)
	assert.Zero(t, tx.MembershipMonths)
	assert.Contains(t, tx.ReportMemo, "Unknown payment reason")
}

func seedTraining(t *testing.T, repo *repository.SQLiteRepo, m *domain.Member, costMinor int64, cancelled bool) *domain.Training {
	t.Helper()
	ctx := context.Background()

	s := &domain.Session{CourseName: "Woodworking", CostMinor: costMinor, IsCancelled: cancelled}
	require.NoError(t, repo.CreateSession(ctx, s))

	tr := &domain.Training{
		AttendanceStatus: domain.AttendanceWaitingForPayment,
		SessionID:        &s.ID,
		UserID:           m.UserID,
		MemberID:         &m.ID,
	}
	require.NoError(t, repo.CreateTraining(ctx, tr))
	return tr
}

func TestProcess_TrainingPayment(t *testing.T) {
	uc, repo := newEngine(t, true)
	m := seedMember(t, repo, 5000)
	tr := seedTraining(t, repo, m, 7525, false)

	res, err := uc.Process(context.Background(), ipnValues(map[string]string{
		"mc_gross": "75.25",
		"custom":   `{"training": ` + itoa(tr.ID) + `}`,
	}))
	require.NoError(t, err)

	assert.Equal(t, domain.IPNStatusMemberDues, res.Status)
	require.True(t, res.Accepted())

	got, err := repo.TrainingByID(context.Background(), tr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AttendanceConfirmed, got.AttendanceStatus)

	txs := allTxs(t, repo)
	require.Len(t, txs, 1)
	tx := txs[0]
	assert.Contains(t, tx.Memo, "Woodworking Course")
	assert.Equal(t, domain.ReportNone, tx.ReportType)
	require.NotNil(t, tx.MemberID)
	assert.Equal(t, m.ID, *tx.MemberID)
	assert.Zero(t, tx.MembershipMonths)
}

func TestProcess_TrainingMismatchFallsThrough(t *testing.T) {
	tests := []struct {
		name string
		seed func(t *testing.T, repo *repository.SQLiteRepo, m *domain.Member) int64
	}{
		{
			name: "cost mismatch",
			seed: func(t *testing.T, repo *repository.SQLiteRepo, m *domain.Member) int64 {
				return seedTraining(t, repo, m, 9999, false).ID
			},
		},
		{
			name: "cancelled session",
			seed: func(t *testing.T, repo *repository.SQLiteRepo, m *domain.Member) int64 {
				return seedTraining(t, repo, m, 7525, true).ID
			},
		},
		{
			name: "registration not waiting for payment",
			seed: func(t *testing.T, repo *repository.SQLiteRepo, m *domain.Member) int64 {
				tr := seedTraining(t, repo, m, 7525, false)
				require.NoError(t, repo.ConfirmTraining(context.Background(), tr.ID))
				return tr.ID
			},
		},
		{
			name: "linked to a different member",
			seed: func(t *testing.T, repo *repository.SQLiteRepo, m *domain.Member) int64 {
				other := &domain.Member{FirstName: "Other", LastName: "Person", MonthlyFeesMinor: 5000, StartDate: time.Now().UTC()}
				require.NoError(t, repo.CreateMember(context.Background(), other))
				return seedTraining(t, repo, other, 7525, false).ID
			},
		},
		{
			name: "no linked user",
			seed: func(t *testing.T, repo *repository.SQLiteRepo, m *domain.Member) int64 {
				s := &domain.Session{CourseName: "Woodworking", CostMinor: 7525}
				require.NoError(t, repo.CreateSession(context.Background(), s))
				tr := &domain.Training{AttendanceStatus: domain.AttendanceWaitingForPayment, SessionID: &s.ID, MemberID: &m.ID}
				require.NoError(t, repo.CreateTraining(context.Background(), tr))
				return tr.ID
			},
		},
		{
			name: "registration does not exist",
			seed: func(t *testing.T, repo *repository.SQLiteRepo, m *domain.Member) int64 {
				return 9999
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc, repo := newEngine(t, true)
			m := seedMember(t, repo, 5000)
			trainingID := tt.seed(t, repo, m)

			res, err := uc.Process(context.Background(), ipnValues(map[string]string{
				"mc_gross": "75.25",
				"custom":   `{"training": ` + itoa(trainingID) + `}`,
			}))
			require.NoError(t, err)

			assert.Equal(t, domain.IPNStatusUnmatchedPurchase, res.Status)

			txs := allTxs(t, repo)
			require.Len(t, txs, 1)
			assert.Equal(t, domain.ReportUnmatchedPurchase, txs[0].ReportType)
		})
	}
}

func TestProcess_MalformedDateLeavesLedgerNew(t *testing.T) {
	uc, repo := newEngine(t, true)
	seedMember(t, repo, 5000)

	_, err := uc.Process(context.Background(), ipnValues(map[string]string{
		"payment_date": "18:30:30 Jan 25, 2021 EST",
	}))
	require.Error(t, err)

	var ve *paypal.ValidationError
	assert.ErrorAs(t, err, &ve)

	// no money moved
	assert.Empty(t, allTxs(t, repo))
}

// racingStore simulates losing the check-then-insert race: the fast-path
// duplicate check sees nothing, but the unique constraint still fires.
type racingStore struct {
	*repository.SQLiteRepo
}

func (s racingStore) TxnExists(ctx context.Context, paypalTxnID string) (bool, error) {
	return false, nil
}

func TestProcess_LostDuplicateInsertRace(t *testing.T) {
	repo, err := repository.NewSQLiteRepo(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	seedMember(t, repo, 5000)

	uc := usecase.NewIPNUsecase(racingStore{repo}, fakeVerifier{ok: true}, testReceiver, testCurrency)

	first, err := uc.Process(context.Background(), ipnValues(nil))
	require.NoError(t, err)
	require.True(t, first.Accepted())

	second, err := uc.Process(context.Background(), ipnValues(nil))
	require.NoError(t, err)

	assert.Equal(t, domain.IPNStatusDuplicate, second.Status)
	assert.False(t, second.Accepted())
	assert.Len(t, allTxs(t, repo), 1)
}

func TestProcess_MalformedAmountRejected(t *testing.T) {
	uc, repo := newEngine(t, true)
	seedMember(t, repo, 5000)

	_, err := uc.Process(context.Background(), ipnValues(map[string]string{"mc_gross": "fifty"}))
	assert.ErrorIs(t, err, domain.ErrBadAmount)
	assert.Empty(t, allTxs(t, repo))
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
