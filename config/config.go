// Package config loads facilitator configuration from the environment,
// following the .env-then-os.Getenv convention used throughout the example
// facilitators this service descends from.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// NetworkSettings is the per-network slice of configuration: RPC endpoint,
// signer keys, router/hook whitelists and the default settlement asset.
type NetworkSettings struct {
	Network          string
	RPCURL           string
	SignerKeysHex    []string
	SettlementRouter string
	AllowedHooks     []string // empty means no whitelist
	AssetAddress     string
	AssetDecimals    uint8
	AssetEIP712Name  string
	AssetEIP712Ver   string
	NativePriceFeed  string
	AssetPriceFeed   string
}

// Config is the fully parsed facilitator configuration.
type Config struct {
	Port        string
	Environment string // "testnet" or "mainnet"
	LogLevel    string

	Networks map[string]NetworkSettings

	PriceOracleEnabled bool
	PriceCacheTTL      time.Duration

	GasOracleEnabled bool
	GasCacheTTL      time.Duration

	BalanceCacheTTL time.Duration

	SignerAcquireTimeout time.Duration
	SignerQuarantineTTL  time.Duration

	RPCTimeout time.Duration
}

// Load reads .env (if present) and then the process environment, the same
// precedence the example facilitators use. Missing required variables are a
// startup error: a misconfigured facilitator should refuse to start rather
// than fail individual requests later.
func Load() (*Config, error) {
	return LoadFrom()
}

// LoadFrom is Load with an explicit list of dotenv file paths, for a
// --env-file flag to override the default "./.env" lookup with.
func LoadFrom(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		// Absence of a .env file is not an error; env vars may be set directly.
		_ = err
	}

	cfg := &Config{
		Port:                 getenvDefault("PORT", "4022"),
		Environment:          getenvDefault("FACILITATOR_ENV", "testnet"),
		LogLevel:             getenvDefault("LOG_LEVEL", "info"),
		PriceOracleEnabled:   getenvBool("PRICE_ORACLE_ENABLED", true),
		PriceCacheTTL:        getenvDuration("PRICE_CACHE_TTL", 30*time.Second),
		GasOracleEnabled:     getenvBool("GAS_ORACLE_ENABLED", true),
		GasCacheTTL:          getenvDuration("GAS_CACHE_TTL", 10*time.Second),
		BalanceCacheTTL:      getenvDuration("BALANCE_CACHE_TTL", 5*time.Second),
		SignerAcquireTimeout: getenvDuration("SIGNER_ACQUIRE_TIMEOUT", 15*time.Second),
		SignerQuarantineTTL:  getenvDuration("SIGNER_QUARANTINE_TTL", 60*time.Second),
		RPCTimeout:           getenvDuration("RPC_TIMEOUT", 10*time.Second),
		Networks:             map[string]NetworkSettings{},
	}

	names := splitCSV(os.Getenv("FACILITATOR_NETWORKS"))
	if len(names) == 0 {
		return nil, fmt.Errorf("FACILITATOR_NETWORKS is required (comma-separated network names)")
	}

	for _, name := range names {
		prefix := envPrefix(name)

		rpcURL := os.Getenv(prefix + "_RPC_URL")
		if rpcURL == "" {
			return nil, fmt.Errorf("%s_RPC_URL is required for network %q", prefix, name)
		}

		keys := splitCSV(os.Getenv(prefix + "_SIGNER_KEYS"))
		if len(keys) == 0 {
			return nil, fmt.Errorf("%s_SIGNER_KEYS is required for network %q (at least one signer)", prefix, name)
		}

		router := os.Getenv(prefix + "_SETTLEMENT_ROUTER")
		if router == "" {
			return nil, fmt.Errorf("%s_SETTLEMENT_ROUTER is required for network %q", prefix, name)
		}

		asset := os.Getenv(prefix + "_ASSET_ADDRESS")
		if asset == "" {
			return nil, fmt.Errorf("%s_ASSET_ADDRESS is required for network %q", prefix, name)
		}

		decimals, err := strconv.Atoi(getenvDefault(prefix+"_ASSET_DECIMALS", "6"))
		if err != nil {
			return nil, fmt.Errorf("%s_ASSET_DECIMALS: %w", prefix, err)
		}

		cfg.Networks[name] = NetworkSettings{
			Network:          name,
			RPCURL:           rpcURL,
			SignerKeysHex:    keys,
			SettlementRouter: router,
			AllowedHooks:     splitCSV(os.Getenv(prefix + "_ALLOWED_HOOKS")),
			AssetAddress:     asset,
			AssetDecimals:    uint8(decimals),
			AssetEIP712Name:  getenvDefault(prefix+"_ASSET_EIP712_NAME", "USD Coin"),
			AssetEIP712Ver:   getenvDefault(prefix+"_ASSET_EIP712_VERSION", "2"),
			NativePriceFeed:  os.Getenv(prefix + "_NATIVE_PRICE_FEED"),
			AssetPriceFeed:   os.Getenv(prefix + "_ASSET_PRICE_FEED"),
		}
	}

	return cfg, nil
}

func envPrefix(network string) string {
	return strings.ToUpper(strings.ReplaceAll(network, "-", "_"))
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
