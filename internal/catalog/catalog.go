// Package catalog loads and serves the discount master data. The
// catalog file is hot-reloadable; validity and usage checks live in the
// pricing package so they stay pure.
package catalog

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/carelink/billing/internal/billing/domain"
	"github.com/carelink/billing/internal/clock"
	"github.com/carelink/billing/internal/config"
	"github.com/carelink/billing/internal/eventbus"
	"github.com/carelink/billing/internal/pricing"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// discountSpec is the on-disk shape of one discount entry.
type discountSpec struct {
	Code      string  `mapstructure:"code"`
	Type      string  `mapstructure:"type"`
	Value     float64 `mapstructure:"value"`
	Category  string  `mapstructure:"category"`
	StartDate string  `mapstructure:"startDate"`
	EndDate   string  `mapstructure:"endDate"`
	IsActive  *bool   `mapstructure:"isActive"`
	MaxUsage  *int    `mapstructure:"maxUsage"`
}

// Catalog holds the current discount set behind an atomic snapshot plus
// a usage-count overlay that survives file reloads.
type Catalog struct {
	current atomic.Value // holds []domain.Discount

	mu    sync.Mutex
	usage map[string]int

	clock clock.Clock
	bus   *eventbus.Bus
	log   *zap.Logger
}

// DefaultDiscounts seeds the catalog when no file is configured.
func DefaultDiscounts() []domain.Discount {
	return []domain.Discount{
		{Code: "SENIOR20", Type: domain.DiscountTypePercentage, Value: 20, Category: "senior", IsActive: true},
		{Code: "PWD20", Type: domain.DiscountTypePercentage, Value: 20, Category: "pwd", IsActive: true},
	}
}

type Params struct {
	fx.In

	Config config.Config
	Clock  clock.Clock
	Bus    *eventbus.Bus
	Log    *zap.Logger
}

// New loads the catalog from the discounts file (hot-reloaded on change)
// or falls back to the built-in defaults when no file exists.
func New(p Params) (*Catalog, error) {
	c := &Catalog{
		usage: make(map[string]int),
		clock: p.Clock,
		bus:   p.Bus,
		log:   p.Log.Named("catalog"),
	}

	v := viper.New()
	v.SetConfigName("discounts")
	v.SetConfigType("yml")
	if p.Config.CatalogPath != "" {
		v.AddConfigPath(p.Config.CatalogPath)
	}
	v.AddConfigPath("/etc/carelink")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		c.current.Store(DefaultDiscounts())
		return c, nil
	}

	discounts, err := parseDiscounts(v)
	if err != nil {
		return nil, err
	}
	c.current.Store(discounts)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := parseDiscounts(v)
		if err != nil {
			c.log.Warn("invalid discounts file ignored", zap.Error(err))
			return
		}
		c.current.Store(updated)
		c.log.Info("discount catalog reloaded", zap.String("file", e.Name), zap.Int("count", len(updated)))
		c.bus.Publish(eventbus.Event{Topic: eventbus.TopicDiscountsChanged})
	})

	return c, nil
}

func parseDiscounts(v *viper.Viper) ([]domain.Discount, error) {
	var specs []discountSpec
	if err := v.UnmarshalKey("discounts", &specs); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(specs))
	out := make([]domain.Discount, 0, len(specs))
	for _, spec := range specs {
		code := strings.ToUpper(strings.TrimSpace(spec.Code))
		if code == "" {
			return nil, fmt.Errorf("discount entry without code: %w", domain.ErrUnknownDiscountCode)
		}
		if _, dup := seen[code]; dup {
			return nil, fmt.Errorf("code %s: %w", code, domain.ErrDuplicateDiscountCode)
		}
		seen[code] = struct{}{}

		active := true
		if spec.IsActive != nil {
			active = *spec.IsActive
		}
		out = append(out, domain.Discount{
			Code:      code,
			Type:      domain.DiscountType(strings.ToLower(spec.Type)),
			Value:     spec.Value,
			Category:  spec.Category,
			StartDate: parseDate(spec.StartDate),
			EndDate:   parseDate(spec.EndDate),
			IsActive:  active,
			MaxUsage:  spec.MaxUsage,
		})
	}
	return out, nil
}

func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// List returns the current discounts with live usage counts applied.
func (c *Catalog) List() []domain.Discount {
	defs, _ := c.current.Load().([]domain.Discount)
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]domain.Discount, len(defs))
	for i, d := range defs {
		d.UsageCount = c.usage[d.Code]
		out[i] = d
	}
	return out
}

// Get returns the discount for a code, case-insensitive.
func (c *Catalog) Get(code string) (domain.Discount, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, d := range c.List() {
		if d.Code == code {
			return d, nil
		}
	}
	return domain.Discount{}, fmt.Errorf("code %s: %w", code, domain.ErrUnknownDiscountCode)
}

// Validate checks a code's current validity without consuming usage.
func (c *Catalog) Validate(code string) error {
	d, err := c.Get(code)
	if err != nil {
		return err
	}
	return pricing.ValidateDiscount(d, c.clock.Now())
}

// Redeem validates the code and consumes one usage.
func (c *Catalog) Redeem(code string) (domain.Discount, error) {
	d, err := c.Get(code)
	if err != nil {
		return domain.Discount{}, err
	}
	if err := pricing.ValidateDiscount(d, c.clock.Now()); err != nil {
		return domain.Discount{}, err
	}

	c.mu.Lock()
	c.usage[d.Code]++
	d.UsageCount = c.usage[d.Code]
	c.mu.Unlock()
	return d, nil
}

// Module wires the discount catalog.
var Module = fx.Module("catalog",
	fx.Provide(New),
)
