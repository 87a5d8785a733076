package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// BillingConfig carries the operator-tunable billing knobs that are not part of the
// persisted tariff record.
type BillingConfig struct {
	Tariff    TariffDefaults `mapstructure:"tariff"`
	DueInDays int            `mapstructure:"dueInDays"`
	Rollover  RolloverConfig `mapstructure:"rollover"`
}

// TariffDefaults seed the settings record until an administrator saves one.
type TariffDefaults struct {
	KilowattPrice   string `mapstructure:"kilowattPrice"`
	SubscriptionFee string `mapstructure:"subscriptionFee"`
	TaxRate         string `mapstructure:"taxRate"`
}

type RolloverConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		Tariff: TariffDefaults{
			KilowattPrice:   "0.5",
			SubscriptionFee: "10",
			TaxRate:         "0.15",
		},
		DueInDays: 0,
		Rollover:  RolloverConfig{Concurrency: 4},
	}
}

// Amounts parses the tariff defaults.
func (t TariffDefaults) Amounts() (price, fee, taxRate decimal.Decimal, err error) {
	if price, err = decimal.NewFromString(strings.TrimSpace(t.KilowattPrice)); err != nil {
		return
	}
	if fee, err = decimal.NewFromString(strings.TrimSpace(t.SubscriptionFee)); err != nil {
		return
	}
	taxRate, err = decimal.NewFromString(strings.TrimSpace(t.TaxRate))
	return
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

// NewStaticBillingConfigHolder returns a holder that never reloads.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewBillingConfigHolder(appCfg Config, log *zap.Logger) (*BillingConfigHolder, error) {
	v := viper.New()

	if appCfg.BillingConfigPath != "" {
		v.SetConfigFile(appCfg.BillingConfigPath)
	} else {
		v.SetConfigName("billing")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/meterbill")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("METERBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.tariff.kilowattPrice", defaults.Tariff.KilowattPrice)
	v.SetDefault("billing.tariff.subscriptionFee", defaults.Tariff.SubscriptionFee)
	v.SetDefault("billing.tariff.taxRate", defaults.Tariff.TaxRate)
	v.SetDefault("billing.dueInDays", defaults.DueInDays)
	v.SetDefault("billing.rollover.concurrency", defaults.Rollover.Concurrency)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	if err := ValidateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticBillingConfigHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	log = log.Named("billing.config")
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Warn("reload failed", zap.String("file", e.Name), zap.Error(err))
			return
		}
		if err := ValidateBillingConfig(updated); err != nil {
			log.Warn("invalid config ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func ValidateBillingConfig(cfg BillingConfig) error {
	price, fee, taxRate, err := cfg.Tariff.Amounts()
	if err != nil {
		return errors.New("billing.tariff must hold decimal values")
	}
	if !price.IsPositive() {
		return errors.New("billing.tariff.kilowattPrice must be positive")
	}
	if fee.IsNegative() {
		return errors.New("billing.tariff.subscriptionFee cannot be negative")
	}
	if taxRate.IsNegative() || taxRate.GreaterThan(decimal.NewFromInt(1)) {
		return errors.New("billing.tariff.taxRate must be between 0 and 1")
	}
	if cfg.DueInDays < 0 {
		return errors.New("billing.dueInDays cannot be negative")
	}
	if cfg.Rollover.Concurrency < 0 {
		return errors.New("billing.rollover.concurrency cannot be negative")
	}
	return nil
}
