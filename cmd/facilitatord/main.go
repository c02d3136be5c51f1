// Command facilitatord runs the settlement facilitator as an HTTP service:
// it loads configuration from the environment, dials one signing client per
// configured key per network, wires the ten components together, and serves
// /verify and /settle until it receives SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	facilitator "github.com/awesome-doge/settlement-core/go"
	"github.com/awesome-doge/settlement-core/go/audit"
	"github.com/awesome-doge/settlement-core/go/balance"
	"github.com/awesome-doge/settlement-core/go/config"
	"github.com/awesome-doge/settlement-core/go/fees"
	"github.com/awesome-doge/settlement-core/go/oracle/feeds"
	"github.com/awesome-doge/settlement-core/go/oracle/gas"
	"github.com/awesome-doge/settlement-core/go/oracle/price"
	"github.com/awesome-doge/settlement-core/go/registry"
	"github.com/awesome-doge/settlement-core/go/router"
	"github.com/awesome-doge/settlement-core/go/server"
	"github.com/awesome-doge/settlement-core/go/settlement"
	"github.com/awesome-doge/settlement-core/go/signer"
	"github.com/awesome-doge/settlement-core/go/verify"
)

// clientMap is the production verify.ClientProvider: one read/write capable
// client per network, reused for both the verifier's ERC-6492 GetCode probe
// and the price/gas fetchers' contract reads.
type clientMap map[string]router.Client

func (m clientMap) ClientFor(network string) (router.Client, error) {
	c, ok := m[network]
	if !ok {
		return nil, fmt.Errorf("no client configured for network %q", network)
	}
	return c, nil
}

func main() {
	envFile := flag.String("env-file", "", "path to a dotenv file to load before the process environment (default: ./.env)")
	port := flag.String("port", "", "override PORT from the environment")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *envFile != "" {
		cfg, err = config.LoadFrom(*envFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *port != "" {
		cfg.Port = *port
	}

	logger, err := newLogger(cfg.Environment)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("facilitatord exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	networkConfigs, clients, err := dialNetworks(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("dial networks: %w", err)
	}

	reg, err := registry.New(networkConfigs...)
	if err != nil {
		return fmt.Errorf("build registry: %w", err)
	}

	pool := signer.New(logger)
	for network, netClients := range clients {
		for _, c := range netClients {
			pool.AddClient(network, c)
		}
	}

	readClients := make(clientMap, len(clients))
	for network, netClients := range clients {
		if len(netClients) > 0 {
			readClients[network] = netClients[0]
		}
	}

	nativeFeeds := make(map[string]common.Address)
	assetFeeds := make(map[string]common.Address)
	testnets := make(map[string]bool)
	staticPrices := make(map[string]price.StaticPrices)
	for _, nc := range networkConfigs {
		nativeFeeds[nc.Name] = nc.NativePriceFeed
		assetFeeds[nc.Name] = nc.AssetPriceFeed
		if nc.IsTestnet {
			testnets[nc.Name] = true
			staticPrices[nc.Name] = price.StaticPrices{NativeUSD: 1, AssetUSD: 1}
		}
	}

	gasFetcher := feeds.NewRPCGasFetcher(readClients)
	priceFetcher := feeds.NewChainlinkPriceFetcher(readClients, nativeFeeds, assetFeeds)

	gasOracle, err := gas.New(gasFetcher, logger, cfg.GasCacheTTL)
	if err != nil {
		return fmt.Errorf("build gas oracle: %w", err)
	}
	priceOracle, err := price.New(priceFetcher, logger, cfg.PriceCacheTTL, testnets, staticPrices)
	if err != nil {
		return fmt.Errorf("build price oracle: %w", err)
	}

	balances := balance.New(logger, cfg.BalanceCacheTTL)
	feeEngine := fees.New(reg)
	verifier := verify.New(reg, readClients, balances, logger)

	reg2 := prometheus.NewRegistry()
	sink := audit.NewMultiSink(audit.NewZapSink(logger), audit.NewPrometheusSink(reg2))

	engine := settlement.New(settlement.Config{
		Registry:             reg,
		Verifier:             verifier,
		Pool:                 pool,
		GasOracle:            gasOracle,
		PriceOracle:          priceOracle,
		Fees:                 feeEngine,
		Balances:             balances,
		Sink:                 sink,
		Logger:               logger,
		SignerAcquireTimeout: cfg.SignerAcquireTimeout,
		SignerQuarantineTTL:  cfg.SignerQuarantineTTL,
	})

	app := facilitator.New(verifier, engine)
	app.RegisterSupported(supportedKinds(networkConfigs))

	app.OnAfterVerify(func(c facilitator.VerifyResultContext) error {
		logger.Info("verify completed",
			zap.String("network", string(c.Requirements.Network)),
			zap.Bool("isValid", c.Result.IsValid),
		)
		return nil
	})
	app.OnAfterSettle(func(c facilitator.SettleResultContext) error {
		logger.Info("settle completed",
			zap.String("network", string(c.Requirements.Network)),
			zap.Bool("success", c.Result.Success),
			zap.String("transaction", c.Result.Transaction),
		)
		return nil
	})

	srv := server.New(app, logger, reg2, cfg.Port, cfg.Environment == "mainnet")
	return srv.Run()
}

// dialNetworks builds a registry.NetworkConfig and one router.Client per
// signer key for every network in cfg.Networks.
func dialNetworks(ctx context.Context, cfg *config.Config, logger *zap.Logger) ([]registry.NetworkConfig, map[string][]router.Client, error) {
	var networkConfigs []registry.NetworkConfig
	clients := make(map[string][]router.Client)

	for name, ns := range cfg.Networks {
		netCfg, err := registry.BuildConfig(registry.NetworkSettingsSource{
			Network:          ns.Network,
			RPCURL:           ns.RPCURL,
			SettlementRouter: ns.SettlementRouter,
			AllowedHooks:     ns.AllowedHooks,
			AssetAddress:     ns.AssetAddress,
			AssetDecimals:    ns.AssetDecimals,
			AssetEIP712Name:  ns.AssetEIP712Name,
			AssetEIP712Ver:   ns.AssetEIP712Ver,
			NativePriceFeed:  ns.NativePriceFeed,
			AssetPriceFeed:   ns.AssetPriceFeed,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("network %q: %w", name, err)
		}
		networkConfigs = append(networkConfigs, netCfg)

		for _, keyHex := range ns.SignerKeysHex {
			client, err := router.Dial(ctx, ns.RPCURL, big.NewInt(netCfg.ChainID), keyHex)
			if err != nil {
				return nil, nil, fmt.Errorf("network %q: dial signer: %w", name, err)
			}
			clients[name] = append(clients[name], client)
			logger.Info("signer ready", zap.String("network", name), zap.String("address", client.Address().Hex()))
		}
	}

	return networkConfigs, clients, nil
}

func supportedKinds(networkConfigs []registry.NetworkConfig) []facilitator.SupportedKind {
	kinds := make([]facilitator.SupportedKind, 0, len(networkConfigs))
	for _, nc := range networkConfigs {
		kinds = append(kinds, facilitator.SupportedKind{
			Scheme:  "exact",
			Network: facilitator.Network(nc.Name),
			Extra: map[string]interface{}{
				"asset":            nc.DefaultAsset.Address.Hex(),
				"settlementRouter": nc.SettlementRouter.Hex(),
			},
		})
	}
	return kinds
}

func newLogger(environment string) (*zap.Logger, error) {
	if environment == "mainnet" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
