package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/multierr"

	"cyclebot/internal/bot"
	"cyclebot/internal/config"
	"cyclebot/internal/repository"
	"cyclebot/internal/service"
	"cyclebot/pkg/utils"
)

// ledgers - журналы сделок процесса; любой может отсутствовать
type ledgers struct {
	db    *sql.DB
	repo  *repository.TradeRepository
	jsonl *repository.JSONLLedger
	stats *service.StatsService // только при SQL журнале
}

// openLedgers открывает SQL и файловый журналы по конфигурации
func openLedgers(ctx context.Context, cfg *config.Config) (*ledgers, error) {
	l := &ledgers{}

	if cfg.Database.Enabled() {
		if cfg.Database.Driver == config.DriverSQLite {
			if dir := filepath.Dir(cfg.Database.Path); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, fmt.Errorf("create database dir: %w", err)
				}
			}
		}
		dsn, err := cfg.Database.DSN(cfg.Key())
		if err != nil {
			return nil, err
		}
		db, err := repository.OpenDB(ctx, cfg.Database.Driver, dsn)
		if err != nil {
			return nil, fmt.Errorf("database %s: %w", cfg.Database.DSNWithoutPassword(), err)
		}
		l.db = db
		if err := repository.Migrate(ctx, db, cfg.Database.Driver); err != nil {
			l.close()
			return nil, err
		}
		l.repo = repository.NewTradeRepository(db)
		l.stats = service.NewStatsService(l.repo)
	}

	if cfg.Ledger.Path != "" {
		jl, err := repository.OpenJSONLLedger(cfg.Ledger.Path)
		if err != nil {
			l.close()
			return nil, err
		}
		l.jsonl = jl
	}
	return l, nil
}

// sink - приёмник движка: все открытые журналы
func (l *ledgers) sink() *repository.MultiSink {
	var sinks []repository.TradeAppender
	if l.repo != nil {
		sinks = append(sinks, l.repo)
	}
	if l.jsonl != nil {
		sinks = append(sinks, l.jsonl)
	}
	return repository.NewMultiSink(sinks...)
}

// restoreRisk передаёт риск-менеджеру сделки со вчерашнего дня
//
// SQL журнал приоритетнее файлового.
func (l *ledgers) restoreRisk(ctx context.Context, gate *bot.RiskGate) (int, error) {
	if l.stats != nil {
		return l.stats.RestoreRisk(ctx, gate)
	}
	if l.jsonl == nil {
		return 0, nil
	}
	since := utils.DayStartIn(time.Now(), time.Local).AddDate(0, 0, -1)
	records, err := l.jsonl.ListSince(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", l.jsonl.Path(), err)
	}
	return gate.Restore(records), nil
}

func (l *ledgers) close() error {
	var err error
	if l.jsonl != nil {
		err = multierr.Append(err, l.jsonl.Close())
	}
	if l.db != nil {
		err = multierr.Append(err, l.db.Close())
	}
	return err
}

// app - движок со всеми зависимостями
type app struct {
	cfg       *config.Config
	log       *utils.Logger
	ledgers   *ledgers
	exchanges *service.ExchangeService
	engine    *bot.Engine
}

// newApp подключается к бирже, открывает журналы и создаёт движок
func newApp(ctx context.Context, cfg *config.Config, log *utils.Logger) (a *app, err error) {
	a = &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			err = multierr.Append(err, a.close())
			a = nil
		}
	}()

	if a.ledgers, err = openLedgers(ctx, cfg); err != nil {
		return a, err
	}

	a.exchanges = service.NewExchangeService(cfg.ExchangeOptions(), cfg.Key())
	ex, err := a.exchanges.Connect(ctx)
	if err != nil {
		return a, err
	}

	settings := cfg.EngineSettings()
	a.engine, err = bot.NewEngine(bot.Options{
		Gateway:  ex,
		Sink:     a.ledgers.sink(),
		Risk:     bot.NewRiskGate(cfg.Bot.Risk),
		Settings: &settings,
	})
	if err != nil {
		return a, err
	}

	n, err := a.ledgers.restoreRisk(ctx, a.engine.Risk())
	if err != nil {
		// без истории риск-менеджер начинает день с нуля
		log.Warn("Risk ledger not restored", utils.Err(err))
	} else {
		log.Info("Engine ready",
			utils.String("exchange", ex.Name()),
			utils.Int("restored_trades", n))
	}
	return a, nil
}

// close останавливает движок и закрывает соединения
func (a *app) close() error {
	var err error
	if a.engine != nil {
		err = multierr.Append(err, a.engine.Close())
	}
	if a.exchanges != nil {
		err = multierr.Append(err, a.exchanges.Close())
	}
	if a.ledgers != nil {
		err = multierr.Append(err, a.ledgers.close())
	}
	return err
}
