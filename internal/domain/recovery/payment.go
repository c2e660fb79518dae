package recovery

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatusCaptured is the gateway status of a settled payment
const PaymentStatusCaptured = "captured"

// Notes are free-form key/value annotations attached to a payment.
// The gateway encodes empty notes as a JSON array, which decodes to no notes.
type Notes struct {
	CancelURL string
	Values    map[string]string
}

// UnmarshalJSON implements json.Unmarshaler
func (n *Notes) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		*n = Notes{}
		return nil
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	values := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			values[k] = s
		}
	}
	*n = Notes{CancelURL: values["cancelUrl"], Values: values}
	return nil
}

// MarshalJSON implements json.Marshaler
func (n Notes) MarshalJSON() ([]byte, error) {
	values := make(map[string]string, len(n.Values)+1)
	for k, v := range n.Values {
		values[k] = v
	}
	if n.CancelURL != "" {
		values["cancelUrl"] = n.CancelURL
	}
	return json.Marshal(values)
}

// Payment is a gateway payment. Amount is in minor units and CreatedAt in
// epoch seconds.
type Payment struct {
	ID        string `json:"id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency,omitempty"`
	Status    string `json:"status"`
	Email     string `json:"email,omitempty"`
	Contact   string `json:"contact,omitempty"`
	CreatedAt int64  `json:"created_at"`
	Notes     Notes  `json:"notes"`
}

// AmountMajor returns the amount in major currency units
func (p *Payment) AmountMajor() decimal.Decimal {
	return decimal.New(p.Amount, -2)
}

// CreatedTime returns CreatedAt as a time.Time
func (p *Payment) CreatedTime() time.Time {
	return time.Unix(p.CreatedAt, 0)
}

// matchesCheckout applies the correlation rule: a captured payment with a
// cancel URL note that either carries the checkout's phone and exact amount,
// or embeds the cart token in its cancel URL.
func (p *Payment) matchesCheckout(c *Checkout) bool {
	if p.Status != PaymentStatusCaptured || p.Notes.CancelURL == "" {
		return false
	}

	if c.CartToken != "" && strings.Contains(p.Notes.CancelURL, c.CartToken) {
		return true
	}

	if !p.AmountMajor().Equal(c.TotalPrice) {
		return false
	}
	contact := Last10(p.Contact)
	if contact == "" {
		return false
	}
	for _, phone := range c.MatchPhones() {
		if Last10(phone) == contact {
			return true
		}
	}
	return false
}

// SelectPayment picks the payment that settled checkout c. Only payments
// created within [now-window, now] are eligible; among matches the most
// recent wins and the first encountered wins a tie. Returns nil when nothing
// matches.
func SelectPayment(c *Checkout, payments []Payment, now time.Time, window time.Duration) *Payment {
	upper := now.Unix()
	lower := now.Add(-window).Unix()

	var best *Payment
	for i := range payments {
		p := &payments[i]
		if p.CreatedAt < lower || p.CreatedAt > upper {
			continue
		}
		if !p.matchesCheckout(c) {
			continue
		}
		if best == nil || p.CreatedAt > best.CreatedAt {
			best = p
		}
	}
	return best
}
