package main

import (
	"flag"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"os"
	"strings"
	"time"

	"fundpool/config"
	"fundpool/native/fund"
	"fundpool/observability"
	"fundpool/observability/logging"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatalf("fundpoolctl: %v", err)
	}
}

func run(args []string) error {
	flags := flag.NewFlagSet("fundpoolctl", flag.ContinueOnError)
	configPath := flags.String("config", "fundpool.toml", "path to the TOML configuration")
	env := flags.String("env", "", "deployment environment label for logs")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() == 0 {
		return fmt.Errorf("usage: fundpoolctl [flags] price | convert <amount> | version")
	}

	logger := logging.Setup("fundpoolctl", *env)
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	oracle, err := buildOracle(cfg)
	if err != nil {
		return err
	}
	maxAge := time.Duration(cfg.MaxQuoteAgeSeconds) * time.Second
	converter, err := fund.NewConverter(oracle, cfg.PricePair, maxAge)
	if err != nil {
		return err
	}
	metrics := observability.Metrics()

	switch flags.Arg(0) {
	case "price":
		start := time.Now()
		price, err := converter.CurrentPrice()
		elapsed := time.Since(start)
		metrics.ObserveOracleQuery(elapsed)
		if err != nil {
			return err
		}
		logger.Info("resolved oracle price", "pair", cfg.PricePair, "price", price.String(), "oracleRoundTrip", elapsed.String())
		fmt.Println(price.String())
		return nil
	case "convert":
		if flags.NArg() < 2 {
			return fmt.Errorf("convert requires an amount in native base units")
		}
		amount, ok := new(big.Int).SetString(strings.TrimSpace(flags.Arg(1)), 10)
		if !ok {
			return fmt.Errorf("invalid amount %q", flags.Arg(1))
		}
		start := time.Now()
		value, err := converter.Convert(amount)
		elapsed := time.Since(start)
		metrics.ObserveOracleQuery(elapsed)
		if err != nil {
			return err
		}
		logger.Info("converted amount", "pair", cfg.PricePair, "amount", amount.String(), "referenceValue", value.String(), "oracleRoundTrip", elapsed.String())
		fmt.Println(value.String())
		return nil
	case "version":
		version, err := converter.Version()
		if err != nil {
			return err
		}
		fmt.Println(version)
		return nil
	default:
		return fmt.Errorf("unknown command %q", flags.Arg(0))
	}
}

func buildOracle(cfg *config.Config) (fund.PriceOracle, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Oracle.Type)) {
	case "manual":
		manual := fund.NewManualOracle()
		manual.SetVersion(cfg.Oracle.Version)
		if rate := strings.TrimSpace(cfg.Oracle.ManualRate); rate != "" {
			pair := strings.SplitN(cfg.PricePair, "/", 2)
			if err := manual.SetDecimal(pair[0], pair[1], rate, time.Now().UTC()); err != nil {
				return nil, err
			}
		}
		return manual, nil
	case "coingecko":
		client := &http.Client{Timeout: 10 * time.Second}
		oracle := fund.NewCoinGeckoOracle(client, cfg.Oracle.Endpoint, cfg.Oracle.AssetIDs, cfg.Oracle.Version)
		return fund.NewThrottledOracle(oracle, cfg.Oracle.RatePerMinute, cfg.Oracle.Burst), nil
	default:
		return nil, fmt.Errorf("unknown oracle type %q", cfg.Oracle.Type)
	}
}
