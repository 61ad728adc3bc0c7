package httpd

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"github.com/protodarkstar/spaceport/internal/domain"
	"github.com/protodarkstar/spaceport/internal/paypal"
	"github.com/protodarkstar/spaceport/internal/repository"
	"github.com/protodarkstar/spaceport/internal/usecase"
)

type Handler struct {
	uc        *usecase.IPNUsecase
	repo      *repository.SQLiteRepo
	validate  *validator.Validate
	ipnSecret string
}

func NewHandler(uc *usecase.IPNUsecase, repo *repository.SQLiteRepo, ipnSecret string) *Handler {
	return &Handler{
		uc:        uc,
		repo:      repo,
		validate:  validator.New(),
		ipnSecret: ipnSecret,
	}
}

// Routes mounts the IPN receiver and the admin API. The receiver sits
// outside the signed group: PayPal cannot sign its POSTs, so that route is
// guarded by its random path secret instead.
func (h *Handler) Routes(sig SigConfig) http.Handler {
	r := chi.NewRouter()

	r.Post("/ipn/{secret}", h.ReceiveIPN)

	r.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"http://localhost:5173"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Timestamp", "X-Signature"},
			ExposedHeaders:   []string{"Link"},
			AllowCredentials: false,
			MaxAge:           300,
		}))

		r.Use(SignatureMiddleware(sig))

		r.Get("/api/v1/transactions", h.ListTransactions)
		r.Get("/api/v1/transactions/{paypalTxnID}", h.GetTransaction)
		r.Get("/api/v1/ipns/{id}", h.GetIPN)
		r.Post("/api/v1/hints", h.UpsertHint)
		r.Get("/api/v1/healthz", h.Healthz)
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// POST /ipn/{secret}
//
// PayPal redelivers until it sees a 200, so every disposition the engine
// reaches on its own (rejects included) answers 200. Only an unknown route
// secret, a malformed body, or a storage failure does not.
func (h *Handler) ReceiveIPN(w http.ResponseWriter, r *http.Request) {
	if chi.URLParam(r, "secret") != h.ipnSecret {
		http.NotFound(w, r)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form body", http.StatusBadRequest)
		return
	}

	res, err := h.uc.Process(r.Context(), r.PostForm)
	if err != nil {
		var ve *paypal.ValidationError
		if errors.As(err, &ve) || errors.Is(err, domain.ErrBadAmount) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Printf("ipn processing: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	log.Printf("ipn %s settled: %s", res.IPNID, res.Status)
	w.WriteHeader(http.StatusOK)
}

// GET /api/v1/transactions?memberId=&reportType=&txnId=&limit=&offset=
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.TxFilter{
		PayPalTxnID: q.Get("txnId"),
	}
	if v := q.Get("memberId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid memberId"})
			return
		}
		filter.MemberID = &id
	}
	if v, ok := q["reportType"]; ok && len(v) > 0 {
		rt := domain.ReportType(v[0])
		filter.ReportType = &rt
	}

	limit := 50
	offset := 0
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	items, err := h.repo.ListTransactions(r.Context(), filter, limit, offset)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	out := make([]TxItem, 0, len(items))
	for _, t := range items {
		out = append(out, toTxItem(t))
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /api/v1/transactions/{paypalTxnID}
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "paypalTxnID")
	t, err := h.repo.GetTransactionByPayPalID(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "transaction not found"})
		return
	}

	writeJSON(w, http.StatusOK, toTxItem(*t))
}

// GET /api/v1/ipns/{id}
func (h *Handler) GetIPN(w http.ResponseWriter, r *http.Request) {
	ipn, err := h.repo.GetIPN(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "ipn not found"})
		return
	}

	writeJSON(w, http.StatusOK, IPNItem{
		ID:        ipn.ID,
		Data:      ipn.Data,
		Status:    string(ipn.Status),
		CreatedAt: ipn.CreatedAt,
	})
}

// POST /api/v1/hints
//
// Hints are established out-of-band by portal staff; the IPN engine only
// ever reads them.
func (h *Handler) UpsertHint(w http.ResponseWriter, r *http.Request) {
	var req UpsertHintReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if _, err := h.repo.MemberByID(r.Context(), req.MemberID); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "member not found"})
		return
	}

	hint := domain.PayPalHint{Account: req.Account, MemberID: req.MemberID}
	if err := h.repo.UpsertHint(r.Context(), &hint); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, UpsertHintResp{Account: hint.Account, MemberID: hint.MemberID})
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func toTxItem(t domain.Transaction) TxItem {
	return TxItem{
		ID:               t.ID,
		AccountType:      t.AccountType,
		Amount:           domain.FormatAmountMinor(t.AmountMinor),
		PaymentDate:      t.PaymentDate,
		PaymentMethod:    t.PaymentMethod,
		PayPalPayerID:    t.PayPalPayerID,
		PayPalTxnID:      t.PayPalTxnID,
		ReferenceNumber:  t.ReferenceNumber,
		Memo:             t.Memo,
		ReportMemo:       t.ReportMemo,
		ReportType:       string(t.ReportType),
		MemberID:         t.MemberID,
		UserID:           t.UserID,
		MembershipMonths: t.MembershipMonths,
		CreatedAt:        t.CreatedAt,
	}
}
