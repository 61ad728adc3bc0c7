package config

import (
	"os"
	"strconv"
)

type Config struct {
	AppPort          string
	SQLiteDSN        string
	HMACSecret       string
	SigMaxAgeSeconds int64

	// IPNRouteSecret is the random path segment the IPN endpoint listens
	// under; PayPal cannot sign its POSTs, so the URL itself is the secret.
	IPNRouteSecret string

	Sandbox       bool
	VerifyURL     string
	ReceiverEmail string
	Currency      string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Load builds the configuration once at startup. PAYPAL_SANDBOX picks the
// defaults for the verification endpoint, receiver identity, and currency;
// explicit env values always win over either set of defaults.
func Load() Config {
	sandbox := getBool("PAYPAL_SANDBOX", true)

	verifyURL := "https://ipnpb.paypal.com/cgi-bin/webscr"
	receiverEmail := "dues@protodarkstar.com"
	currency := "CAD"
	if sandbox {
		verifyURL = "https://ipnpb.sandbox.paypal.com/cgi-bin/webscr"
		receiverEmail = "seller@paypalsandbox.com"
		currency = "USD"
	}

	return Config{
		AppPort:          getenv("APP_PORT", "8080"),
		SQLiteDSN:        getenv("SQLITE_DSN", "./spaceport.db"),
		HMACSecret:       getenv("HMAC_SECRET", "supersecret-dev"),
		SigMaxAgeSeconds: getInt64("SIG_MAX_AGE_SECONDS", 300),
		IPNRouteSecret:   getenv("IPN_ROUTE_SECRET", "dev-ipn-secret"),
		Sandbox:          sandbox,
		VerifyURL:        getenv("PAYPAL_VERIFY_URL", verifyURL),
		ReceiverEmail:    getenv("PAYPAL_RECEIVER_EMAIL", receiverEmail),
		Currency:         getenv("PAYPAL_CURRENCY", currency),
	}
}
