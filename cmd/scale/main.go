package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	json "github.com/goccy/go-json"
	"github.com/spf13/pflag"

	"hyperbot/internal/config"
	"hyperbot/internal/engine"
	"hyperbot/internal/errs"
	"hyperbot/internal/exchange/hyperliquid/rest"
	"hyperbot/internal/logger"
	"hyperbot/internal/models"
	"hyperbot/internal/storage"
	"hyperbot/internal/storage/memory"
	"hyperbot/internal/storage/postgres"
)

const usage = `Usage: scale <command> [flags]

Commands:
  preview   compute the ladder without placing orders
  place     place the ladder on the exchange
  status    refresh fill progress of a scale order
  cancel    cancel a scale order
  list      list stored scale orders
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, args []string) error {
	fs := pflag.NewFlagSet(command, pflag.ContinueOnError)
	configDir := fs.String("config", "configs", "directory with config.yaml")

	var cfgFlags models.ScaleOrderConfig
	var distribution, tif, id string
	var cancelAll bool

	switch command {
	case "preview", "place":
		fs.StringVar(&cfgFlags.Coin, "coin", "", "asset, e.g. BTC")
		fs.BoolVar(&cfgFlags.IsBuy, "buy", true, "buy ladder, --buy=false for sell")
		fs.Float64Var(&cfgFlags.TotalUSDAmount, "usd", 0, "total notional in USD")
		fs.Float64Var(&cfgFlags.TotalCoinSize, "size", 0, "total size in coins")
		fs.IntVar(&cfgFlags.NumOrders, "orders", 5, "number of orders")
		fs.Float64Var(&cfgFlags.StartPrice, "start", 0, "first price level")
		fs.Float64Var(&cfgFlags.EndPrice, "end", 0, "last price level")
		fs.StringVar(&distribution, "distribution", string(models.DistributionLinear), "linear or geometric")
		fs.Float64Var(&cfgFlags.GeometricRatio, "ratio", 0, "geometric ratio")
		fs.BoolVar(&cfgFlags.ReduceOnly, "reduce-only", false, "reduce only orders")
		fs.StringVar(&tif, "tif", string(models.TimeInForceGtc), "Gtc, Ioc or Alo")
	case "status":
		fs.StringVar(&id, "id", "", "scale order id")
	case "cancel":
		fs.StringVar(&id, "id", "", "scale order id")
		fs.BoolVar(&cancelAll, "all", true, "cancel resting orders on the exchange")
	case "list":
	default:
		return fmt.Errorf("unknown command %q\n%s", command, usage)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	cfgFlags.DistributionType = models.DistributionType(strings.ToLower(distribution))
	cfgFlags.TimeInForce = models.TimeInForce(tif)

	cfg, err := config.LoadFrom(*configDir)
	if err != nil {
		return err
	}
	if err := requireDurableStore(command, cfg.Storage.Driver); err != nil {
		return err
	}

	log := logger.New(logger.Config{
		Level:  cfg.Runtime.Log.Level,
		Format: cfg.Runtime.Log.Format,
		Output: "stderr",
	})

	client, err := rest.New(rest.Config{
		BaseURL:           cfg.Exchange.BaseURL,
		AccountAddress:    cfg.Exchange.AccountAddress,
		PrivateKey:        cfg.Exchange.PrivateKey,
		VaultAddress:      cfg.Exchange.VaultAddress,
		Mainnet:           cfg.Exchange.Mainnet,
		RequestsPerSecond: cfg.Exchange.RequestsPerSecond,
	}, log)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer closeStore()

	eng := engine.New(engine.Options{
		Rounding:       engine.Rounding{TickSize: cfg.Scale.TickSize, SizeDecimals: cfg.Scale.SizeDecimals},
		GeometricRatio: cfg.Scale.GeometricRatio,
	}, client, client, store, log)

	var out any
	switch command {
	case "preview":
		out, err = eng.Preview(ctx, cfgFlags)
	case "place":
		if cfg.Storage.Driver == "memory" {
			log.Warn("storage.driver=memory: scale-ордер не сохранится после выхода, status и cancel будут недоступны.")
		}
		if cfg.Runtime.DryRun {
			log.Warn("Включён dry run, ордера не размещаются.")
			out, err = eng.Preview(ctx, cfgFlags)
			break
		}
		out, err = eng.Place(ctx, cfgFlags)
	case "status":
		out, err = eng.Status(ctx, id)
	case "cancel":
		out, err = eng.Cancel(ctx, id, cancelAll)
	case "list":
		out, err = eng.List(ctx)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// requireDurableStore rejects commands that read orders saved by an earlier run when the store
// does not outlive the process.
func requireDurableStore(command, driver string) error {
	switch command {
	case "status", "cancel", "list":
		if driver != "postgres" {
			return errs.Validation("scale."+command, fmt.Sprintf("command %q needs storage.driver=postgres, %q keeps orders only for one run", command, driver))
		}
	}
	return nil
}

// openStore picks the scale order store. The memory store lives only as long as the process.
func openStore(ctx context.Context, cfg config.StorageConfig) (storage.ScaleOrderStore, func(), error) {
	if cfg.Driver != "postgres" {
		return memory.NewScaleOrderStore(), func() {}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return postgres.NewScaleOrderStore(pool), pool.Close, nil
}
