package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/account"
	checkoutsession "github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/transfer"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/beartask/beartask-backend/pkg/config"
	"github.com/beartask/beartask-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errSecretRequired   = errors.New("stripe webhook secret is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

// Client wraps Stripe's API client plus env-specific metadata. It is the
// single gateway surface the settlement and payout services depend on.
type Client struct {
	environment   string
	signingSecret string
	successURL    string
	cancelURL     string
}

// CheckoutSessionParams carries everything a support checkout needs.
type CheckoutSessionParams struct {
	AmountCents int64
	Currency    string
	ProductName string
	Metadata    map[string]string
	CustomerRef string
}

// CheckoutSession is the subset of the gateway session the ledger stores.
type CheckoutSession struct {
	ID  string
	URL string
}

// TransferParams carries everything a payout execution needs.
type TransferParams struct {
	DestinationAccount string
	AmountCents        int64
	Currency           string
	IdempotencyKey     string
	TransferGroup      string
	Metadata           map[string]string
}

// NewClient initializes Stripe once with the configured secrets and env.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}

	signingSecret := strings.TrimSpace(cfg.WebhookSecret)
	if signingSecret == "" {
		return nil, errSecretRequired
	}

	if err := validateAPIKey(env, apiKey); err != nil {
		return nil, err
	}

	stripe.Key = apiKey

	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("stripe client initialized (%s)", env))
	}

	return &Client{
		environment:   env,
		signingSecret: signingSecret,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
	}, nil
}

// Environment reports the normalized Stripe environment in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// VerifyEvent checks the webhook signature and parses the event. This is the
// sole authentication boundary for inbound settlement events.
func (c *Client) VerifyEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, sigHeader, c.signingSecret)
}

// CreateCheckoutSession opens a hosted payment session for one support amount.
func (c *Client) CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error) {
	if params.AmountCents <= 0 {
		return nil, fmt.Errorf("checkout amount must be positive")
	}
	currency := params.Currency
	if currency == "" {
		currency = "usd"
	}
	name := params.ProductName
	if name == "" {
		name = "BearTask Support"
	}

	sessionParams := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(params.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(name),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(c.successURL),
		CancelURL:  stripe.String(c.cancelURL),
	}
	sessionParams.Context = ctx
	// Metadata rides on the payment intent too so failure events can be
	// correlated back to the purchase.
	sessionParams.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{}
	for key, value := range params.Metadata {
		sessionParams.AddMetadata(key, value)
		sessionParams.PaymentIntentData.AddMetadata(key, value)
	}
	if params.CustomerRef != "" {
		sessionParams.ClientReferenceID = stripe.String(params.CustomerRef)
	}

	created, err := checkoutsession.New(sessionParams)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &CheckoutSession{ID: created.ID, URL: created.URL}, nil
}

// AccountPayoutReady reports whether the connected account finished onboarding
// and can receive transfers.
func (c *Client) AccountPayoutReady(ctx context.Context, accountID string) (bool, error) {
	if strings.TrimSpace(accountID) == "" {
		return false, fmt.Errorf("stripe account id is required")
	}
	params := &stripe.AccountParams{}
	params.Context = ctx
	acct, err := account.GetByID(accountID, params)
	if err != nil {
		return false, fmt.Errorf("retrieve account: %w", err)
	}
	return acct.PayoutsEnabled, nil
}

// CreateTransfer moves money to a connected account. The idempotency key must
// be stable per payout so gateway-side replays never double-transfer.
func (c *Client) CreateTransfer(ctx context.Context, params TransferParams) (string, error) {
	if params.AmountCents <= 0 {
		return "", fmt.Errorf("transfer amount must be positive")
	}
	if strings.TrimSpace(params.DestinationAccount) == "" {
		return "", fmt.Errorf("destination account is required")
	}
	if strings.TrimSpace(params.IdempotencyKey) == "" {
		return "", fmt.Errorf("idempotency key is required")
	}
	currency := params.Currency
	if currency == "" {
		currency = "usd"
	}

	transferParams := &stripe.TransferParams{
		Amount:      stripe.Int64(params.AmountCents),
		Currency:    stripe.String(currency),
		Destination: stripe.String(params.DestinationAccount),
	}
	transferParams.Context = ctx
	transferParams.SetIdempotencyKey(params.IdempotencyKey)
	if params.TransferGroup != "" {
		transferParams.TransferGroup = stripe.String(params.TransferGroup)
	}
	for key, value := range params.Metadata {
		transferParams.AddMetadata(key, value)
	}

	created, err := transfer.New(transferParams)
	if err != nil {
		return "", fmt.Errorf("create transfer: %w", err)
	}
	return created.ID, nil
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = testEnv
	}
	switch env {
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidStripeEnv
	}
}

func validateAPIKey(env, key string) error {
	switch env {
	case testEnv:
		if strings.HasPrefix(key, "sk_test") || strings.HasPrefix(key, "rk_test") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a test secret key (sk_test/rk_test)", testEnv)
	case liveEnv:
		if strings.HasPrefix(key, "sk_live") || strings.HasPrefix(key, "rk_live") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a live secret key (sk_live/rk_live)", liveEnv)
	default:
		return errInvalidStripeEnv
	}
}
