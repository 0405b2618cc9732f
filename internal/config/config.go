// Package config defines the engine configuration and validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by MARKETD_* environment
// variables.
type Config struct {
	Market   MarketConfig  `toml:"market"`
	Fees     FeesConfig    `toml:"fees"`
	Listing  ListingConfig `toml:"listing"`
	Auction  AuctionConfig `toml:"auction"`
	Wallet   WalletConfig  `toml:"wallet"`
	Redis    RedisConfig   `toml:"redis"`
	Mode     string        `toml:"mode"`
	LogLevel string        `toml:"log_level"`
}

// MarketConfig holds the engine's well-known accounts and the trusted
// authority for off-chain order authorizations.
type MarketConfig struct {
	EscrowAccount string `toml:"escrow_account"`
	FeeAccount    string `toml:"fee_account"`
	Authority     string `toml:"authority"`
}

// FeesConfig holds the protocol fee rates in basis points.
type FeesConfig struct {
	ListingFeeBps  int64 `toml:"listing_fee_bps"`
	OfferFeeBps    int64 `toml:"offer_fee_bps"`
	DenominatorBps int64 `toml:"denominator_bps"`
}

// ListingConfig bounds listing lifetimes.
type ListingConfig struct {
	MinDuration duration `toml:"min_duration"`
	MaxDuration duration `toml:"max_duration"`
}

// AuctionConfig bounds auction lifetimes and sets the early-end policy.
type AuctionConfig struct {
	MinDuration   duration `toml:"min_duration"`
	MaxDuration   duration `toml:"max_duration"`
	AllowEarlyEnd bool     `toml:"allow_early_end"`
}

// WalletConfig holds the authority's signing key material, used by the
// simulation mode to issue off-chain order authorizations.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// RedisConfig holds the optional Redis lock-manager connection. When Enabled
// is false the engine serializes with an in-process keyed mutex.
type RedisConfig struct {
	Enabled  bool     `toml:"enabled"`
	Addr     string   `toml:"addr"`
	Password string   `toml:"password"`
	DB       int      `toml:"db"`
	LockTTL  duration `toml:"lock_ttl"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding ("72h", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

var validModes = map[string]bool{
	"simulate": true,
	"check":    true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Fees: FeesConfig{
			ListingFeeBps:  250,
			OfferFeeBps:    250,
			DenominatorBps: 10_000,
		},
		Listing: ListingConfig{
			MinDuration: duration{time.Minute},
			MaxDuration: duration{180 * 24 * time.Hour},
		},
		Auction: AuctionConfig{
			MinDuration:   duration{time.Minute},
			MaxDuration:   duration{30 * 24 * time.Hour},
			AllowEarlyEnd: true,
		},
		Redis: RedisConfig{
			Addr:    "localhost:6379",
			LockTTL: duration{30 * time.Second},
		},
		Mode:     "check",
		LogLevel: "info",
	}
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: simulate, check)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Market accounts
	if !common.IsHexAddress(c.Market.EscrowAccount) {
		errs = append(errs, fmt.Sprintf("market: escrow_account %q is not a valid address", c.Market.EscrowAccount))
	}
	if !common.IsHexAddress(c.Market.FeeAccount) {
		errs = append(errs, fmt.Sprintf("market: fee_account %q is not a valid address", c.Market.FeeAccount))
	}
	if !common.IsHexAddress(c.Market.Authority) {
		errs = append(errs, fmt.Sprintf("market: authority %q is not a valid address", c.Market.Authority))
	}

	// Fees
	if c.Fees.DenominatorBps <= 0 {
		errs = append(errs, fmt.Sprintf("fees: denominator_bps must be positive, got %d", c.Fees.DenominatorBps))
	} else {
		if c.Fees.ListingFeeBps < 0 || c.Fees.ListingFeeBps > c.Fees.DenominatorBps {
			errs = append(errs, fmt.Sprintf("fees: listing_fee_bps %d out of range [0, %d]", c.Fees.ListingFeeBps, c.Fees.DenominatorBps))
		}
		if c.Fees.OfferFeeBps < 0 || c.Fees.OfferFeeBps > c.Fees.DenominatorBps {
			errs = append(errs, fmt.Sprintf("fees: offer_fee_bps %d out of range [0, %d]", c.Fees.OfferFeeBps, c.Fees.DenominatorBps))
		}
	}

	// Durations
	if c.Listing.MinDuration.Duration <= 0 || c.Listing.MaxDuration.Duration < c.Listing.MinDuration.Duration {
		errs = append(errs, "listing: durations must satisfy 0 < min_duration <= max_duration")
	}
	if c.Auction.MinDuration.Duration <= 0 || c.Auction.MaxDuration.Duration < c.Auction.MinDuration.Duration {
		errs = append(errs, "auction: durations must satisfy 0 < min_duration <= max_duration")
	}

	// Wallet — simulate mode signs orders, so it needs a key source.
	if strings.ToLower(c.Mode) == "simulate" {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for simulate mode")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.LockTTL.Duration <= 0 {
			errs = append(errs, "redis: lock_ttl must be positive")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// EscrowAddress returns the parsed escrow account. Call after Validate.
func (c *Config) EscrowAddress() common.Address {
	return common.HexToAddress(c.Market.EscrowAccount)
}

// FeeAddress returns the parsed fee account. Call after Validate.
func (c *Config) FeeAddress() common.Address {
	return common.HexToAddress(c.Market.FeeAccount)
}

// AuthorityAddress returns the parsed authority. Call after Validate.
func (c *Config) AuthorityAddress() common.Address {
	return common.HexToAddress(c.Market.Authority)
}
