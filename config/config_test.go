package config

import (
	"os"
	"testing"
)

func clearFacilitatorEnv(t *testing.T) {
	t.Helper()
	vars := []string{
		"FACILITATOR_NETWORKS",
		"BASE_SEPOLIA_RPC_URL", "BASE_SEPOLIA_SIGNER_KEYS", "BASE_SEPOLIA_SETTLEMENT_ROUTER",
		"BASE_SEPOLIA_ASSET_ADDRESS", "BASE_SEPOLIA_ASSET_DECIMALS",
	}
	for _, v := range vars {
		os.Unsetenv(v)
	}
}

func TestLoad_MissingNetworksIsError(t *testing.T) {
	clearFacilitatorEnv(t)

	if _, err := Load(); err == nil {
		t.Fatal("expected error when FACILITATOR_NETWORKS is unset")
	}
}

func TestLoad_MissingRequiredNetworkVarIsError(t *testing.T) {
	clearFacilitatorEnv(t)
	t.Setenv("FACILITATOR_NETWORKS", "base-sepolia")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when a required per-network var is missing")
	}
}

func TestLoad_HappyPath(t *testing.T) {
	clearFacilitatorEnv(t)
	t.Setenv("FACILITATOR_NETWORKS", "base-sepolia")
	t.Setenv("BASE_SEPOLIA_RPC_URL", "https://sepolia.base.org")
	t.Setenv("BASE_SEPOLIA_SIGNER_KEYS", "aaaa,bbbb")
	t.Setenv("BASE_SEPOLIA_SETTLEMENT_ROUTER", "0x3333333333333333333333333333333333333333")
	t.Setenv("BASE_SEPOLIA_ASSET_ADDRESS", "0x4444444444444444444444444444444444444444")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ns, ok := cfg.Networks["base-sepolia"]
	if !ok {
		t.Fatal("expected base-sepolia network to be configured")
	}
	if len(ns.SignerKeysHex) != 2 {
		t.Errorf("got %d signer keys, want 2", len(ns.SignerKeysHex))
	}
	if ns.AssetDecimals != 6 {
		t.Errorf("got asset decimals %d, want default 6", ns.AssetDecimals)
	}
}

func TestLoad_InvalidDecimalsIsError(t *testing.T) {
	clearFacilitatorEnv(t)
	t.Setenv("FACILITATOR_NETWORKS", "base-sepolia")
	t.Setenv("BASE_SEPOLIA_RPC_URL", "https://sepolia.base.org")
	t.Setenv("BASE_SEPOLIA_SIGNER_KEYS", "aaaa")
	t.Setenv("BASE_SEPOLIA_SETTLEMENT_ROUTER", "0x3333333333333333333333333333333333333333")
	t.Setenv("BASE_SEPOLIA_ASSET_ADDRESS", "0x4444444444444444444444444444444444444444")
	t.Setenv("BASE_SEPOLIA_ASSET_DECIMALS", "not-a-number")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-numeric asset decimals")
	}
}
