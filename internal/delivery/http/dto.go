package httpd

import "time"

type UpsertHintReq struct {
	Account  string `json:"account" validate:"required"`
	MemberID int64  `json:"memberId" validate:"required,gt=0"`
}

type UpsertHintResp struct {
	Account  string `json:"account"`
	MemberID int64  `json:"memberId"`
}

type TxItem struct {
	ID               int64     `json:"id"`
	AccountType      string    `json:"accountType"`
	Amount           string    `json:"amount"`
	PaymentDate      time.Time `json:"paymentDate"`
	PaymentMethod    string    `json:"paymentMethod"`
	PayPalPayerID    string    `json:"paypalPayerId"`
	PayPalTxnID      string    `json:"paypalTxnId"`
	ReferenceNumber  string    `json:"referenceNumber"`
	Memo             string    `json:"memo,omitempty"`
	ReportMemo       string    `json:"reportMemo,omitempty"`
	ReportType       string    `json:"reportType,omitempty"`
	MemberID         *int64    `json:"memberId,omitempty"`
	UserID           *int64    `json:"userId,omitempty"`
	MembershipMonths int64     `json:"membershipMonths,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

type IPNItem struct {
	ID        string    `json:"id"`
	Data      string    `json:"data"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}
