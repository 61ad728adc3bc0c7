package paypal

import (
	"context"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

const (
	cmdField       = "cmd"
	cmdNotifyValid = "_notify-validate"
	verifiedBody   = "VERIFIED"
	userAgent      = "spaceport"
)

// Client performs the IPN notify-validate round trip against PayPal's
// authority endpoint. It is fail-closed: every failure mode, network or
// otherwise, collapses to "not verified" and nothing escapes Verify.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient builds a verifier for the given webscr endpoint. The timeout is
// short on purpose: the inbound IPN POST blocks on us.
func NewClient(endpoint string) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 2 * time.Second},
	}
}

// Verify re-posts the payload with the validate command and accepts only the
// literal VERIFIED response body.
func (c *Client) Verify(ctx context.Context, n Notification) bool {
	form := n.cloneValues()
	form.Set(cmdField, cmdNotifyValid)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		log.Printf("ipn verify: build request: %v", err)
		return false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("ipn verify: %v", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("ipn verify: unexpected status %d", resp.StatusCode)
		return false
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("ipn verify: read body: %v", err)
		return false
	}

	return string(body) == verifiedBody
}
