package httpd

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"time"
)

type SigConfig struct {
	Secret        string
	MaxAgeSeconds int64
}

// SignatureMiddleware authenticates mutating admin requests with an
// HMAC-SHA256 over body + "." + timestamp, carried in X-Signature and
// X-Timestamp. Stale timestamps are rejected to limit replay.
func SignatureMiddleware(cfg SigConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch || r.Method == http.MethodDelete {
				ts := r.Header.Get("X-Timestamp")
				sig := r.Header.Get("X-Signature")

				if ts == "" || sig == "" {
					http.Error(w, "missing signature headers", http.StatusUnauthorized)
					return
				}

				tsInt, err := strconv.ParseInt(ts, 10, 64)
				if err != nil {
					http.Error(w, "invalid timestamp", http.StatusUnauthorized)
					return
				}

				if cfg.MaxAgeSeconds > 0 && time.Now().Unix()-tsInt > cfg.MaxAgeSeconds {
					http.Error(w, "signature expired", http.StatusUnauthorized)
					return
				}

				body, err := io.ReadAll(r.Body)
				if err != nil {
					http.Error(w, "read body error", http.StatusBadRequest)
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))

				if !validSignature(cfg.Secret, body, ts, sig) {
					http.Error(w, "invalid signature", http.StatusUnauthorized)
					return
				}
			}
			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(fn)
	}
}

func validSignature(secret string, body []byte, ts, sig string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	mac.Write([]byte("." + ts))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(sig))
}
