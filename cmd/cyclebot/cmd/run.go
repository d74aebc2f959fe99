package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"cyclebot/internal/bot"
	"cyclebot/internal/models"
	"cyclebot/pkg/utils"
)

// runFlags - переопределения параметров цикла из командной строки
type runFlags struct {
	pair       string
	target     float64
	stopLoss   float64
	amount     float64
	intervalMs int64
	continuous bool
}

func newRunCmd() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run trade cycles in the terminal until done or interrupted",
		Example: `  cyclebot run --pair BTCTRY --target 1.5 --amount 500
  cyclebot run --continuous -c config.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := utils.InitGlobalLogger(cfg.LogConfig())
			defer func() { _ = log.Sync() }()

			engineCfg := f.apply(cmd, cfg.Bot.Engine)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.close()

			return runEngine(ctx, a.engine, engineCfg, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.pair, "pair", "", "trading pair, e.g. BTCTRY")
	flags.Float64Var(&f.target, "target", 0, "profit target, %")
	flags.Float64Var(&f.stopLoss, "stop-loss", 0, "stop loss, % (negative)")
	flags.Float64Var(&f.amount, "amount", 0, "quote amount per cycle")
	flags.Int64Var(&f.intervalMs, "interval-ms", 0, "price check interval, ms")
	flags.BoolVar(&f.continuous, "continuous", false, "start a new cycle after each sale")
	return cmd
}

// apply накладывает явно заданные флаги на параметры из конфигурации
func (f runFlags) apply(cmd *cobra.Command, base models.EngineConfig) models.EngineConfig {
	changed := cmd.Flags().Changed
	if changed("pair") {
		base.Pair = f.pair
	}
	if changed("target") {
		base.TargetProfitPct = f.target
	}
	if changed("stop-loss") {
		base.StopLossPct = f.stopLoss
	}
	if changed("amount") {
		base.TradeAmount = f.amount
	}
	if changed("interval-ms") {
		base.CheckIntervalMs = f.intervalMs
	}
	if changed("continuous") {
		base.Continuous = f.continuous
	}
	return base
}

// engineRunner - то, что нужно run от движка
type engineRunner interface {
	Start(ctx context.Context, cfg models.EngineConfig) error
	Stop()
	Done() <-chan struct{}
	LastError() error
	Stats() models.PerformanceStats
	Subscribe(priceFn bot.PriceFunc, statusFn bot.StatusFunc, tradeFn bot.TradeFunc) (unsubscribe func())
}

// runEngine печатает события движка в out, пока запуск не завершится или не отменён ctx
func runEngine(ctx context.Context, eng engineRunner, cfg models.EngineConfig, out io.Writer) error {
	unsubscribe := eng.Subscribe(nil,
		func(msg string) {
			fmt.Fprintln(out, msg)
		},
		func(rec models.TradeRecord) {
			fmt.Fprintf(out, "%s %.8g %s @ %.8g", rec.Type, rec.Amount, rec.Pair, rec.Price)
			if rec.Type == models.TradeSell {
				fmt.Fprintf(out, " (%+.2f%%, %s)", rec.ProfitPct, rec.Reason)
			}
			fmt.Fprintln(out)
		})
	defer unsubscribe()

	if err := eng.Start(ctx, cfg); err != nil {
		return err
	}

	select {
	case <-eng.Done():
	case <-ctx.Done():
		eng.Stop()
	}

	s := eng.Stats()
	fmt.Fprintf(out, "Cycles: %d, profitable: %d, total profit: %+.2f%%\n",
		s.TotalTrades, s.ProfitableTrades, s.TotalProfit)

	if err := eng.LastError(); err != nil && !errors.Is(err, bot.ErrStopped) {
		return err
	}
	return nil
}
