package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MARKETD_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known MARKETD_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Market ──
	setStr(&cfg.Market.EscrowAccount, "MARKETD_MARKET_ESCROW_ACCOUNT")
	setStr(&cfg.Market.FeeAccount, "MARKETD_MARKET_FEE_ACCOUNT")
	setStr(&cfg.Market.Authority, "MARKETD_MARKET_AUTHORITY")

	// ── Fees ──
	setInt64(&cfg.Fees.ListingFeeBps, "MARKETD_FEES_LISTING_FEE_BPS")
	setInt64(&cfg.Fees.OfferFeeBps, "MARKETD_FEES_OFFER_FEE_BPS")
	setInt64(&cfg.Fees.DenominatorBps, "MARKETD_FEES_DENOMINATOR_BPS")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "MARKETD_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "MARKETD_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "MARKETD_WALLET_KEY_PASSWORD")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "MARKETD_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "MARKETD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MARKETD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MARKETD_REDIS_DB")

	// ── Top level ──
	setStr(&cfg.Mode, "MARKETD_MODE")
	setStr(&cfg.LogLevel, "MARKETD_LOG_LEVEL")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
