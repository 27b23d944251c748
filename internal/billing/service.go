package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/memelab/memeforge/internal/alert"
	"github.com/memelab/memeforge/internal/config"
	"github.com/memelab/memeforge/internal/domain"
	"github.com/memelab/memeforge/internal/logger"
	"github.com/memelab/memeforge/internal/repository"
)

// The messages are surfaced verbatim as API error details, hence the
// capitalization.
var (
	ErrUnknownTier          = errors.New("Unknown subscription tier")
	ErrAlreadySubscribed    = errors.New("Already subscribed")
	ErrNoActiveSubscription = errors.New("No active subscription found")
	ErrNoSubscriptionItem   = errors.New("No subscription item found")
)

// Service drives the Stripe subscription lifecycle: checkout, webhook
// sync, and metered usage reporting. The subscriptions table is the
// source of truth for limits; webhooks keep it aligned with Stripe.
type Service struct {
	stripe         *StripeClient
	subRepo        *repository.SubscriptionRepository
	profileRepo    *repository.ProfileRepository
	notifier       *alert.Notifier
	logger         *logger.Logger
	prices         map[string]string
	tiersByPrice   map[string]string
	successURL     string
	cancelURL      string
	webhookSecrets []string
}

// NewService creates the billing service.
// Parameters:
//   - cfg: Stripe keys, per-tier price IDs, and redirect URLs.
//   - env: deployment environment; selects live vs test credentials.
//   - subRepo: subscription persistence.
//   - profileRepo: profile persistence, for ensuring rows before writes.
//   - notifier: Telegram notifier for payment failure alerts.
//   - log: logger.
//
// Returns:
//   - *Service: initialized billing service.
func NewService(cfg *config.StripeConfig, env string, subRepo *repository.SubscriptionRepository, profileRepo *repository.ProfileRepository, notifier *alert.Notifier, log *logger.Logger) *Service {
	tiersByPrice := make(map[string]string, len(cfg.Prices))
	for tier, priceID := range cfg.Prices {
		tiersByPrice[priceID] = tier
	}

	// Active secret first; the alternate is kept as a fallback for when
	// the environment's secrets are swapped.
	secrets := []string{cfg.ActiveWebhookSecret(env)}
	if alt := cfg.ActiveWebhookSecret(otherEnv(env)); alt != "" && alt != secrets[0] {
		secrets = append(secrets, alt)
	}

	stripe := NewStripeClient(cfg.ActiveSecretKey(env))
	if cfg.APIBase != "" {
		stripe.baseURL = cfg.APIBase
	}

	return &Service{
		stripe:         stripe,
		subRepo:        subRepo,
		profileRepo:    profileRepo,
		notifier:       notifier,
		logger:         log.WithField(logger.FieldComponent, "billing"),
		prices:         cfg.Prices,
		tiersByPrice:   tiersByPrice,
		successURL:     cfg.SuccessURL,
		cancelURL:      cfg.CancelURL,
		webhookSecrets: secrets,
	}
}

func otherEnv(env string) string {
	if env == "prod" {
		return "dev"
	}
	return "prod"
}

// Checkout creates a Stripe Checkout session for the tier and returns its
// hosted payment page URL.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: authenticated caller.
//   - email: caller's email, used to find or create the Stripe customer.
//   - tier: tier key; must have a configured price ID.
//
// Returns:
//   - string: checkout session URL.
//   - error: ErrUnknownTier, ErrAlreadySubscribed, or a Stripe/database
//     failure.
func (s *Service) Checkout(ctx context.Context, userID, email, tier string) (string, error) {
	priceID, ok := s.prices[tier]
	if !ok || priceID == "" {
		return "", ErrUnknownTier
	}

	// Profile row must exist before any subscription writes reference it.
	if _, err := s.profileRepo.GetOrCreate(ctx, userID, email); err != nil {
		return "", fmt.Errorf("failed to ensure profile: %w", err)
	}

	existing, err := s.subRepo.GetByUserID(ctx, userID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("failed to check existing subscription: %w", err)
	}
	if existing != nil && existing.IsActive && existing.StripeSubscriptionID != "" {
		return "", ErrAlreadySubscribed
	}

	customerID, err := s.stripe.FindCustomerByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if customerID == "" {
		customerID, err = s.stripe.CreateCustomer(ctx, email, userID)
		if err != nil {
			return "", err
		}
	} else if err := s.stripe.TagCustomer(ctx, customerID, userID); err != nil {
		return "", err
	}

	session, err := s.stripe.CreateCheckoutSession(ctx, &CheckoutParams{
		CustomerID: customerID,
		PriceID:    priceID,
		UserID:     userID,
		Tier:       tier,
		SuccessURL: s.successURL,
		CancelURL:  s.cancelURL,
	})
	if err != nil {
		return "", err
	}

	s.logger.WithFields(logger.Fields{
		logger.FieldUserID: userID,
		logger.FieldTier:   tier,
	}).Info("Checkout session created")
	return session.URL, nil
}

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type checkoutSessionEvent struct {
	ID                string            `json:"id"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

type subscriptionEvent struct {
	ID                 string            `json:"id"`
	Status             string            `json:"status"`
	Customer           string            `json:"customer"`
	Metadata           map[string]string `json:"metadata"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	Items              struct {
		Data []struct {
			ID    string `json:"id"`
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

type invoiceEvent struct {
	Subscription  string `json:"subscription"`
	CustomerEmail string `json:"customer_email"`
	AttemptCount  int    `json:"attempt_count"`
	AmountDue     int64  `json:"amount_due"`
}

// HandleWebhook verifies and dispatches one Stripe webhook delivery.
// Unhandled event types are acknowledged without action so Stripe does
// not retry them.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - payload: raw request body.
//   - sigHeader: Stripe-Signature header value.
//
// Returns:
//   - error: ErrInvalidSignature for bad signatures, otherwise a
//     processing failure.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, sigHeader string) error {
	if err := s.verifySignature(payload, sigHeader); err != nil {
		return err
	}

	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("failed to parse webhook payload: %w", err)
	}

	log := s.logger.WithFields(logger.Fields{
		"event_id":   event.ID,
		"event_type": event.Type,
	})
	log.Info("Received Stripe webhook event")

	switch event.Type {
	case "checkout.session.completed":
		return s.handleCheckoutCompleted(ctx, event.Data.Object)
	case "customer.subscription.updated":
		return s.handleSubscriptionUpdated(ctx, event.Data.Object)
	case "customer.subscription.deleted":
		return s.handleSubscriptionDeleted(ctx, event.Data.Object)
	case "invoice.payment_failed":
		return s.handlePaymentFailed(ctx, event.Data.Object)
	default:
		log.Debug("Ignoring unhandled webhook event type")
		return nil
	}
}

func (s *Service) verifySignature(payload []byte, sigHeader string) error {
	for _, secret := range s.webhookSecrets {
		if secret == "" {
			continue
		}
		if err := VerifySignature(payload, sigHeader, secret, time.Now()); err == nil {
			return nil
		}
	}
	return ErrInvalidSignature
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, object json.RawMessage) error {
	var sess checkoutSessionEvent
	if err := json.Unmarshal(object, &sess); err != nil {
		return fmt.Errorf("failed to parse checkout session: %w", err)
	}

	userID := sess.Metadata["user_id"]
	if userID == "" {
		userID = sess.ClientReferenceID
	}
	if userID == "" {
		s.logger.WithField("session_id", sess.ID).Warn("Checkout session has no user_id, skipping")
		return nil
	}

	tier := sess.Metadata["tier"]
	if tier == "" {
		tier = domain.TierPlus
	}

	created := false
	sub, err := s.subRepo.GetByUserID(ctx, userID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to load subscription: %w", err)
		}
		sub = &domain.Subscription{
			ID:     uuid.New().String(),
			UserID: userID,
		}
		created = true
	}

	sub.Tier = tier
	sub.IsActive = true
	sub.AutoRenew = true
	sub.PaymentFailureCount = 0
	sub.StripeCustomerID = sess.Customer
	sub.StripeSubscriptionID = sess.Subscription
	sub.CurrentPeriodUsage = 0

	if created {
		err = s.subRepo.Upsert(ctx, sub)
	} else {
		err = s.subRepo.Update(ctx, sub)
	}
	if err != nil {
		return fmt.Errorf("failed to activate subscription: %w", err)
	}

	s.logger.WithFields(logger.Fields{
		logger.FieldUserID: userID,
		logger.FieldTier:   tier,
	}).Info("Subscription activated")
	return nil
}

func (s *Service) handleSubscriptionUpdated(ctx context.Context, object json.RawMessage) error {
	var event subscriptionEvent
	if err := json.Unmarshal(object, &event); err != nil {
		return fmt.Errorf("failed to parse subscription event: %w", err)
	}

	sub, err := s.findSubscription(ctx, event.ID, event.Metadata["user_id"])
	if err != nil {
		return err
	}
	if sub == nil {
		s.logger.WithField("subscription_id", event.ID).Warn("No local row for subscription event, skipping")
		return nil
	}

	active := event.Status == "active" || event.Status == "trialing"
	sub.IsActive = active
	sub.StripeSubscriptionID = event.ID
	if event.Customer != "" {
		sub.StripeCustomerID = event.Customer
	}
	if len(event.Items.Data) > 0 {
		item := event.Items.Data[0]
		sub.StripeSubscriptionItemID = item.ID
		if tier, ok := s.tiersByPrice[item.Price.ID]; ok {
			sub.Tier = tier
		}
	}
	if !active {
		sub.Tier = domain.TierFree
	}

	if event.CurrentPeriodStart > 0 {
		start := time.Unix(event.CurrentPeriodStart, 0).UTC()
		// A new billing period resets the metered usage cache.
		if sub.CurrentPeriodStart == nil || start.After(*sub.CurrentPeriodStart) {
			sub.CurrentPeriodUsage = 0
		}
		sub.CurrentPeriodStart = &start
	}
	if event.CurrentPeriodEnd > 0 {
		end := time.Unix(event.CurrentPeriodEnd, 0).UTC()
		sub.CurrentPeriodEnd = &end
	}

	if err := s.subRepo.Update(ctx, sub); err != nil {
		return fmt.Errorf("failed to sync subscription: %w", err)
	}

	s.logger.WithFields(logger.Fields{
		logger.FieldUserID: sub.UserID,
		logger.FieldTier:   sub.Tier,
		"stripe_status":    event.Status,
	}).Info("Subscription synced")
	return nil
}

func (s *Service) handleSubscriptionDeleted(ctx context.Context, object json.RawMessage) error {
	var event subscriptionEvent
	if err := json.Unmarshal(object, &event); err != nil {
		return fmt.Errorf("failed to parse subscription event: %w", err)
	}

	sub, err := s.findSubscription(ctx, event.ID, event.Metadata["user_id"])
	if err != nil {
		return err
	}
	if sub == nil {
		s.logger.WithField("subscription_id", event.ID).Warn("No local row for deleted subscription, skipping")
		return nil
	}

	sub.IsActive = false
	sub.AutoRenew = false
	sub.Tier = domain.TierFree
	sub.StripeSubscriptionID = ""
	sub.StripeSubscriptionItemID = ""
	sub.CurrentPeriodUsage = 0

	if err := s.subRepo.Update(ctx, sub); err != nil {
		return fmt.Errorf("failed to deactivate subscription: %w", err)
	}

	s.logger.WithField(logger.FieldUserID, sub.UserID).Info("Subscription deactivated")
	return nil
}

func (s *Service) handlePaymentFailed(ctx context.Context, object json.RawMessage) error {
	var event invoiceEvent
	if err := json.Unmarshal(object, &event); err != nil {
		return fmt.Errorf("failed to parse invoice event: %w", err)
	}
	if event.Subscription == "" {
		return nil
	}

	if err := s.subRepo.IncrementPaymentFailures(ctx, event.Subscription); err != nil {
		return fmt.Errorf("failed to record payment failure: %w", err)
	}

	s.logger.WithFields(logger.Fields{
		"subscription_id": event.Subscription,
		"attempt_count":   event.AttemptCount,
	}).Warn("Payment failed for subscription")

	text := fmt.Sprintf("⚠️ *Payment failed* for subscription `%s` (attempt %d)", event.Subscription, event.AttemptCount)
	if event.CustomerEmail != "" {
		text += fmt.Sprintf("\nCustomer: %s", event.CustomerEmail)
	}
	s.notifier.Notify(ctx, text)
	return nil
}

// findSubscription locates the row for a subscription event, by Stripe ID
// first and metadata user_id second.
func (s *Service) findSubscription(ctx context.Context, stripeID, userID string) (*domain.Subscription, error) {
	sub, err := s.subRepo.GetByStripeSubscriptionID(ctx, stripeID)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up subscription: %w", err)
	}

	if userID == "" {
		return nil, nil
	}
	sub, err = s.subRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up subscription: %w", err)
	}
	return sub, nil
}

// UsageStatus summarizes metered usage for the current billing period.
type UsageStatus struct {
	CurrentUsage  int `json:"current_usage"`
	IncludedUnits int `json:"included_units"`
	OverageUnits  int `json:"overage_units"`
}

// ReportUsage reports metered usage to Stripe and updates the local cache.
// The period total is sent with action=set so retried deltas never double
// bill.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: authenticated caller.
//   - quantity: units to add to the current period.
//
// Returns:
//   - *UsageStatus: usage after the increment.
//   - error: ErrNoActiveSubscription, ErrNoSubscriptionItem, or a
//     Stripe/database failure.
func (s *Service) ReportUsage(ctx context.Context, userID string, quantity int) (*UsageStatus, error) {
	sub, err := s.subRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoActiveSubscription
		}
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	if !sub.IsActive {
		return nil, ErrNoActiveSubscription
	}
	if sub.StripeSubscriptionItemID == "" {
		return nil, ErrNoSubscriptionItem
	}

	newUsage := sub.CurrentPeriodUsage + quantity
	if err := s.stripe.CreateUsageRecord(ctx, sub.StripeSubscriptionItemID, newUsage, ""); err != nil {
		return nil, err
	}
	if err := s.subRepo.IncrementUsage(ctx, userID, quantity); err != nil {
		return nil, fmt.Errorf("failed to update usage cache: %w", err)
	}

	overage := newUsage - sub.IncludedUnits
	if overage < 0 {
		overage = 0
	}

	s.logger.WithFields(logger.Fields{
		logger.FieldUserID: userID,
		"usage":            newUsage,
		"overage":          overage,
	}).Info("Usage reported")

	return &UsageStatus{
		CurrentUsage:  newUsage,
		IncludedUnits: sub.IncludedUnits,
		OverageUnits:  overage,
	}, nil
}

// SubscriptionStatus is the caller-facing view of a subscription.
type SubscriptionStatus struct {
	IsActive            bool        `json:"is_active"`
	Tier                string      `json:"subscription_tier"`
	AutoRenew           bool        `json:"auto_renew"`
	PaymentFailureCount int         `json:"payment_failure_count"`
	CurrentPeriodStart  *time.Time  `json:"current_period_start,omitempty"`
	CurrentPeriodEnd    *time.Time  `json:"current_period_end,omitempty"`
	Usage               UsageStatus `json:"usage"`
}

// Subscription returns the caller's subscription state from the local
// row, which webhooks keep in sync with Stripe. Users without a row get
// inactive free-tier defaults.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: authenticated caller.
//
// Returns:
//   - *SubscriptionStatus: current subscription view.
//   - error: non-nil if the lookup fails.
func (s *Service) Subscription(ctx context.Context, userID string) (*SubscriptionStatus, error) {
	sub, err := s.subRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &SubscriptionStatus{Tier: domain.TierFree}, nil
		}
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}

	overage := sub.CurrentPeriodUsage - sub.IncludedUnits
	if overage < 0 {
		overage = 0
	}

	return &SubscriptionStatus{
		IsActive:            sub.IsActive,
		Tier:                sub.Tier,
		AutoRenew:           sub.AutoRenew,
		PaymentFailureCount: sub.PaymentFailureCount,
		CurrentPeriodStart:  sub.CurrentPeriodStart,
		CurrentPeriodEnd:    sub.CurrentPeriodEnd,
		Usage: UsageStatus{
			CurrentUsage:  sub.CurrentPeriodUsage,
			IncludedUnits: sub.IncludedUnits,
			OverageUnits:  overage,
		},
	}, nil
}
