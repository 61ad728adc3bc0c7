package paypal

import (
	"encoding/json"
	"net/url"
)

// IPN payload field names, as PayPal sends them.
const (
	fieldPaymentStatus = "payment_status"
	fieldReceiverEmail = "receiver_email"
	fieldCurrency      = "mc_currency"
	fieldGross         = "mc_gross"
	fieldPaymentDate   = "payment_date"
	fieldPaymentType   = "payment_type"
	fieldPayerID       = "payer_id"
	fieldPayerEmail    = "payer_email"
	fieldFirstName     = "first_name"
	fieldLastName      = "last_name"
	fieldTxnID         = "txn_id"
	fieldCustom        = "custom"
)

// PaymentCompleted is the only payment_status that mutates financial state.
const PaymentCompleted = "Completed"

// Notification wraps a raw IPN form payload. Values are kept verbatim so the
// ledger stores exactly what was received and verification can round-trip
// the original fields.
type Notification struct {
	values url.Values
}

func NewNotification(values url.Values) Notification {
	return Notification{values: values}
}

// Encode returns the payload in url-encoded form for ledger storage.
func (n Notification) Encode() string { return n.values.Encode() }

// cloneValues copies the payload so the verifier can add its command field
// without touching the original.
func (n Notification) cloneValues() url.Values {
	out := make(url.Values, len(n.values))
	for k, vs := range n.values {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

func (n Notification) PaymentStatus() string { return n.values.Get(fieldPaymentStatus) }
func (n Notification) ReceiverEmail() string { return n.values.Get(fieldReceiverEmail) }
func (n Notification) Currency() string      { return n.values.Get(fieldCurrency) }
func (n Notification) Gross() string         { return n.values.Get(fieldGross) }
func (n Notification) PaymentDate() string   { return n.values.Get(fieldPaymentDate) }
func (n Notification) PaymentType() string   { return n.values.Get(fieldPaymentType) }
func (n Notification) PayerID() string       { return n.values.Get(fieldPayerID) }
func (n Notification) PayerEmail() string    { return n.values.Get(fieldPayerEmail) }
func (n Notification) FirstName() string     { return n.values.Get(fieldFirstName) }
func (n Notification) LastName() string      { return n.values.Get(fieldLastName) }
func (n Notification) TxnID() string         { return n.values.Get(fieldTxnID) }
func (n Notification) Custom() string        { return n.values.Get(fieldCustom) }

// TrainingID extracts a training registration id from the free-form custom
// field. An absent, unparseable, or unrelated custom value is not an error,
// it just means no training match.
func (n Notification) TrainingID() (int64, bool) {
	custom := n.Custom()
	if custom == "" {
		return 0, false
	}

	var payload struct {
		Training *int64 `json:"training"`
	}
	if err := json.Unmarshal([]byte(custom), &payload); err != nil || payload.Training == nil {
		return 0, false
	}
	return *payload.Training, true
}
