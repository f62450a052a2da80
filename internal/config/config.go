package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/nikolayk812/shoppingcart/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

const EnvPrefix = "CART"

type Config struct {
	Log     LogConfig     `envconfig:"LOG"`
	Pricing PricingConfig `envconfig:"PRICING"`
	DB      DBConfig      `envconfig:"DB"`
	Redis   RedisConfig   `envconfig:"REDIS"`
	Session SessionConfig `envconfig:"SESSION"`
}

type LogConfig struct {
	Level  string `envconfig:"LEVEL" default:"info"`
	Format string `envconfig:"FORMAT" default:"json" validate:"oneof=json console"`
}

type PricingConfig struct {
	Currency        string   `envconfig:"CURRENCY" default:"USD" validate:"len=3"`
	Rounding        string   `envconfig:"ROUNDING" default:"half_up" validate:"oneof=half_up half_even up down ceiling floor"`
	Calculator      string   `envconfig:"CALCULATOR" default:"default" validate:"oneof=default per_unit"`
	DefaultTax      string   `envconfig:"DEFAULT_TAX" default:"0" validate:"numeric"`
	DisplayDecimals int32    `envconfig:"DISPLAY_DECIMALS" default:"2" validate:"min=0,max=8"`
	Models          []string `envconfig:"MODELS"`
}

type DBConfig struct {
	DSN        string `envconfig:"DSN"`
	Driver     string `envconfig:"DRIVER" default:"postgres" validate:"oneof=postgres gorm sqlite"`
	CartsTable string `envconfig:"CARTS_TABLE" default:"shoppingcart" validate:"required"`
	ItemsTable string `envconfig:"ITEMS_TABLE" default:"shoppingcart_items" validate:"required"`
	MaxConns   int32  `envconfig:"MAX_CONNS" default:"10" validate:"min=1"`
}

type RedisConfig struct {
	URL           string `envconfig:"URL"`
	EventsChannel string `envconfig:"EVENTS_CHANNEL" default:"shoppingcart:events"`
}

type SessionConfig struct {
	Store  string        `envconfig:"STORE" default:"memory" validate:"oneof=memory redis"`
	Prefix string        `envconfig:"PREFIX" default:"cart"`
	TTL    time.Duration `envconfig:"TTL" default:"720h"`
}

// Load reads CART_* variables and validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	if _, err := currency.ParseISO(c.Pricing.Currency); err != nil {
		return fmt.Errorf("currency[%s] is not valid: %w", c.Pricing.Currency, err)
	}
	if c.Session.Store == "redis" && c.Redis.URL == "" {
		return fmt.Errorf("%s_REDIS_URL is required for the redis session store", EnvPrefix)
	}
	return nil
}

func (p PricingConfig) CurrencyUnit() (currency.Unit, error) {
	return currency.ParseISO(p.Currency)
}

func (p PricingConfig) RoundingMode() (domain.RoundingMode, error) {
	return domain.ParseRoundingMode(p.Rounding)
}

func (p PricingConfig) TaxRate() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(p.DefaultTax)
	if err != nil {
		return decimal.Zero, fmt.Errorf("default tax[%s] is not valid: %w", p.DefaultTax, err)
	}
	return rate, nil
}

// NewCalculator resolves the configured calculator with the configured rounding.
func (p PricingConfig) NewCalculator() (domain.Calculator, error) {
	mode, err := p.RoundingMode()
	if err != nil {
		return nil, err
	}
	return domain.CalculatorFor(p.Calculator, mode)
}

// CartOptions turns the pricing config into domain cart options.
func (p PricingConfig) CartOptions() ([]domain.CartOption, error) {
	calc, err := p.NewCalculator()
	if err != nil {
		return nil, err
	}
	tax, err := p.TaxRate()
	if err != nil {
		return nil, err
	}

	opts := []domain.CartOption{
		domain.WithCalculator(calc),
		domain.WithGlobalTax(tax),
	}
	if len(p.Models) > 0 {
		opts = append(opts, domain.WithModels(domain.NewModelSet(p.Models...)))
	}
	return opts, nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("envconfig"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}
