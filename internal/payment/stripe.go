// Package payment talks to Stripe: it opens checkout sessions for premium
// quizzes and turns signed webhook deliveries into domain.PaymentEvent values.
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/victornm/quizinho/internal/domain"
	"github.com/victornm/quizinho/internal/errors"
)

const (
	DefaultPrice       = "5.00"
	DefaultCurrency    = "brl"
	DefaultProductName = "Quizinho Premium"
	DefaultSessionTTL  = 30 * time.Minute
)

type Config struct {
	SecretKey     string
	WebhookSecret string
	PublicBaseURL string

	Price       string
	Currency    string
	ProductName string
	SessionTTL  time.Duration

	// BackendURL and HTTPClient point the Stripe client somewhere else, mostly for tests.
	BackendURL string
	HTTPClient *http.Client

	Now func() time.Time
}

type Gateway struct {
	api           *client.API
	webhookSecret string
	baseURL       string

	unitAmount  int64
	currency    string
	productName string
	sessionTTL  time.Duration

	now func() time.Time
}

func NewGateway(c Config) (*Gateway, error) {
	if c.Price == "" {
		c.Price = DefaultPrice
	}
	if c.Currency == "" {
		c.Currency = DefaultCurrency
	}
	if c.ProductName == "" {
		c.ProductName = DefaultProductName
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = DefaultSessionTTL
	}
	if c.Now == nil {
		c.Now = time.Now
	}

	price, err := decimal.NewFromString(c.Price)
	if err != nil {
		return nil, fmt.Errorf("payment: parse price %q: %w", c.Price, err)
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("payment: price must be positive: got %s", price)
	}

	g := &Gateway{
		webhookSecret: c.WebhookSecret,
		baseURL:       c.PublicBaseURL,
		unitAmount:    price.Shift(2).Round(0).IntPart(),
		currency:      c.Currency,
		productName:   c.ProductName,
		sessionTTL:    c.SessionTTL,
		now:           c.Now,
	}

	if c.SecretKey != "" {
		g.api = client.New(c.SecretKey, backends(c))
	}

	return g, nil
}

func backends(c Config) *stripe.Backends {
	if c.BackendURL == "" && c.HTTPClient == nil {
		return nil
	}

	cfg := &stripe.BackendConfig{HTTPClient: c.HTTPClient}
	if c.BackendURL != "" {
		cfg.URL = stripe.String(c.BackendURL)
	}

	return &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, cfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, cfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, cfg),
	}
}

// CreateCheckout opens a one item checkout session whose client reference is the quiz id.
// Without a secret key it returns a mock URL on the public site.
func (g *Gateway) CreateCheckout(ctx context.Context, quizID string) (string, error) {
	if g.api == nil {
		slog.WarnContext(ctx, "payment: stripe not configured, returning mock checkout url", "id", quizID)
		return g.baseURL + "/?mock_payment=true&id=" + url.QueryEscape(quizID), nil
	}

	params := &stripe.CheckoutSessionParams{
		ClientReferenceID:  stripe.String(quizID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(g.currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(g.productName),
					},
					UnitAmount: stripe.Int64(g.unitAmount),
				},
				Quantity: stripe.Int64(1),
			},
		},
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(g.successURL(quizID)),
		CancelURL:  stripe.String(g.cancelURL(quizID)),
		ExpiresAt:  stripe.Int64(g.now().Add(g.sessionTTL).Unix()),
	}
	params.Context = ctx

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("payment: create checkout session for %s: %w", quizID, err)
	}
	if s.URL == "" {
		return "", fmt.Errorf("payment: checkout session %s has no url", s.ID)
	}

	slog.InfoContext(ctx, "payment: checkout session created", "id", quizID, "session", s.ID)
	return s.URL, nil
}

func (g *Gateway) successURL(quizID string) string {
	q := url.Values{}
	q.Set("loading", "false")
	q.Set("qrCodeURL", g.baseURL+"/"+quizID)
	q.Set("modal", "true")
	return g.baseURL + "/?" + q.Encode()
}

func (g *Gateway) cancelURL(quizID string) string {
	q := url.Values{}
	q.Set("loading", "false")
	q.Set("modal", "true")
	q.Set("id", quizID)
	return g.baseURL + "/?" + q.Encode()
}

// ParseEvent verifies the Stripe-Signature header against the raw payload and
// decodes the checkout events the service reacts to. Anything else comes back
// as domain.PaymentEventOther.
func (g *Gateway) ParseEvent(payload []byte, signature string) (domain.PaymentEvent, error) {
	if signature == "" {
		return domain.PaymentEvent{}, errors.Authenticity(errors.WithMessagef("missing stripe signature"))
	}
	if g.webhookSecret == "" {
		return domain.PaymentEvent{}, errors.Authenticity(errors.WithMessagef("webhook secret not configured"))
	}

	evt, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return domain.PaymentEvent{}, errors.Authenticity(
			errors.WithMessagef("invalid stripe signature"),
			errors.WithCause(err),
		)
	}

	out := domain.PaymentEvent{
		ID:   evt.ID,
		Type: string(evt.Type),
		Kind: domain.PaymentEventOther,
	}

	switch evt.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		out.Kind = domain.PaymentEventCompleted
	case stripe.EventTypeCheckoutSessionExpired:
		out.Kind = domain.PaymentEventExpired
	default:
		return out, nil
	}

	if evt.Data == nil {
		return domain.PaymentEvent{}, errors.Validation(errors.WithMessagef("event %s has no data", evt.ID))
	}

	var s stripe.CheckoutSession
	if err := json.Unmarshal(evt.Data.Raw, &s); err != nil {
		return domain.PaymentEvent{}, errors.Validation(
			errors.WithMessagef("decode checkout session of event %s", evt.ID),
			errors.WithCause(err),
		)
	}
	out.Reference = s.ClientReferenceID

	return out, nil
}
