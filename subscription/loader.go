package subscription

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/vasa-trade/webhook-engine/event"
	"gopkg.in/yaml.v3"
)

/* Seed file support: subscriptions.yaml lets an operator bootstrap the
 * registry at startup without going through the management API.
 */

// SeedFile represents the structure of subscriptions.yaml
type SeedFile struct {
	Subscriptions []SeedConfig `yaml:"subscriptions"`
}

// SeedConfig represents a single subscription in the YAML file
type SeedConfig struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	URL         string            `yaml:"url"`
	Method      string            `yaml:"method"`
	Events      []string          `yaml:"events"`
	Secret      string            `yaml:"secret"`
	Headers     map[string]string `yaml:"headers"`
	IsActive    *bool             `yaml:"is_active"` // defaults to true

	MaxRetries        *int    `yaml:"max_retries"`
	RetryDelayMs      *int    `yaml:"retry_delay_ms"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
	TimeoutSeconds    *int    `yaml:"timeout_seconds"`

	Filters *struct {
		OrderStatuses     []string `yaml:"order_statuses"`
		PaymentTypes      []string `yaml:"payment_types"`
		MinOrderValue     *float64 `yaml:"min_order_value"`
		Countries         []string `yaml:"countries"`
		ProductCategories []string `yaml:"product_categories"`
	} `yaml:"filters"`

	RateLimit *struct {
		Enabled              bool `yaml:"enabled"`
		MaxRequestsPerMinute int  `yaml:"max_requests_per_minute"`
		MaxRequestsPerHour   int  `yaml:"max_requests_per_hour"`
	} `yaml:"rate_limit"`
}

// ParseSeedFile reads and validates a subscriptions.yaml file
func ParseSeedFile(filePath string) ([]Subscription, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("reading subscriptions file: %w", err)
	}

	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parsing subscriptions YAML: %w", err)
	}

	subs := make([]Subscription, 0, len(seed.Subscriptions))
	for _, sc := range seed.Subscriptions {
		sub, err := sc.toSubscription()
		if err != nil {
			return nil, err
		}
		if err := sub.Validate(); err != nil {
			return nil, fmt.Errorf("validating subscription: %w", err)
		}
		subs = append(subs, sub)
	}

	return subs, nil
}

// LoadSeedFile parses the file and stores every subscription in the registry
func LoadSeedFile(ctx context.Context, reg Registry, filePath string) error {
	subs, err := ParseSeedFile(filePath)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if err := reg.Save(ctx, sub); err != nil {
			return fmt.Errorf("seeding subscription %s: %w", sub.ID, err)
		}
	}
	return nil
}

func (sc SeedConfig) toSubscription() (Subscription, error) {
	events := make([]event.Type, 0, len(sc.Events))
	for _, s := range sc.Events {
		t, err := event.ParseType(s)
		if err != nil {
			return Subscription{}, fmt.Errorf("subscription %s: %w", sc.ID, err)
		}
		events = append(events, t)
	}

	policy := DefaultRetryPolicy()
	if sc.MaxRetries != nil {
		policy.MaxRetries = *sc.MaxRetries
	}
	if sc.RetryDelayMs != nil {
		policy.RetryDelay = time.Duration(*sc.RetryDelayMs) * time.Millisecond
	}
	if sc.BackoffMultiplier > 0 {
		policy.BackoffMultiplier = sc.BackoffMultiplier
	}
	if sc.TimeoutSeconds != nil {
		policy.Timeout = time.Duration(*sc.TimeoutSeconds) * time.Second
	}

	method := sc.Method
	if method == "" {
		method = "POST"
	}

	active := true
	if sc.IsActive != nil {
		active = *sc.IsActive
	}

	sub := Subscription{
		ID:          sc.ID,
		Name:        sc.Name,
		Description: sc.Description,
		URL:         sc.URL,
		Method:      method,
		Events:      events,
		Secret:      sc.Secret,
		Headers:     sc.Headers,
		IsActive:    active,
		RetryPolicy: policy,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	if sc.Filters != nil {
		sub.Filters = &Filters{
			OrderStatuses:     sc.Filters.OrderStatuses,
			PaymentTypes:      sc.Filters.PaymentTypes,
			MinOrderValue:     sc.Filters.MinOrderValue,
			Countries:         sc.Filters.Countries,
			ProductCategories: sc.Filters.ProductCategories,
		}
	}

	if sc.RateLimit != nil {
		sub.RateLimit = RateLimit{
			Enabled:              sc.RateLimit.Enabled,
			MaxRequestsPerMinute: sc.RateLimit.MaxRequestsPerMinute,
			MaxRequestsPerHour:   sc.RateLimit.MaxRequestsPerHour,
		}
	}

	return sub, nil
}
