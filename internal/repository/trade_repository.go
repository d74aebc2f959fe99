package repository

import (
	"context"
	"database/sql"
	"time"

	"cyclebot/internal/models"
)

// TradeRepository - журнал сделок в таблице trades
//
// Записи только добавляются; повторная запись с тем же id игнорируется.
// Плейсхолдеры $n понимают и lib/pq, и go-sqlite3.
type TradeRepository struct {
	db *sql.DB
}

// NewTradeRepository создает новый экземпляр репозитория
func NewTradeRepository(db *sql.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

const tradeColumns = `id, cycle_id, pair, type, price, amount, profit_pct, reason, timestamp`

// AppendTrade добавляет запись
func (r *TradeRepository) AppendTrade(ctx context.Context, rec models.TradeRecord) error {
	query := `
		INSERT INTO trades (` + tradeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.CycleID,
		rec.Pair,
		string(rec.Type),
		rec.Price,
		rec.Amount,
		rec.ProfitPct,
		rec.Reason,
		rec.Timestamp.UTC(),
	)
	return err
}

// ListRecent возвращает последние limit записей, новые первыми
func (r *TradeRepository) ListRecent(ctx context.Context, limit int) ([]models.TradeRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		ORDER BY timestamp DESC
		LIMIT $1`

	return r.query(ctx, query, limit)
}

// ListSince возвращает записи начиная с since, старые первыми
func (r *TradeRepository) ListSince(ctx context.Context, since time.Time) ([]models.TradeRecord, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE timestamp >= $1
		ORDER BY timestamp ASC`

	return r.query(ctx, query, since.UTC())
}

// ListByCycle возвращает записи цикла (покупка, затем продажа)
func (r *TradeRepository) ListByCycle(ctx context.Context, cycleID string) ([]models.TradeRecord, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE cycle_id = $1
		ORDER BY timestamp ASC`

	return r.query(ctx, query, cycleID)
}

func (r *TradeRepository) query(ctx context.Context, query string, args ...interface{}) ([]models.TradeRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.TradeRecord
	for rows.Next() {
		var rec models.TradeRecord
		var typ string
		if err := rows.Scan(
			&rec.ID,
			&rec.CycleID,
			&rec.Pair,
			&typ,
			&rec.Price,
			&rec.Amount,
			&rec.ProfitPct,
			&rec.Reason,
			&rec.Timestamp,
		); err != nil {
			return nil, err
		}
		rec.Type = models.TradeType(typ)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ============================================================
// Агрегаты
// ============================================================

// Overall - итоги по всем продажам
func (r *TradeRepository) Overall(ctx context.Context) (models.PerformanceStats, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN profit_pct > 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN profit_pct <= 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(profit_pct), 0)
		FROM trades
		WHERE type = $1`

	var s models.PerformanceStats
	err := r.db.QueryRowContext(ctx, query, string(models.TradeSell)).Scan(
		&s.TotalTrades,
		&s.ProfitableTrades,
		&s.LossTrades,
		&s.TotalProfit,
	)
	if err != nil {
		return models.PerformanceStats{}, err
	}
	if s.TotalTrades > 0 {
		s.AverageProfit = s.TotalProfit / float64(s.TotalTrades)
		s.WinRate = float64(s.ProfitableTrades) / float64(s.TotalTrades) * 100
	}
	return s, nil
}

// Period - число продаж и сумма прибыли начиная с since
func (r *TradeRepository) Period(ctx context.Context, since time.Time) (models.PeriodStats, error) {
	query := `
		SELECT COUNT(*), COALESCE(SUM(profit_pct), 0)
		FROM trades
		WHERE type = $1 AND timestamp >= $2`

	var p models.PeriodStats
	err := r.db.QueryRowContext(ctx, query, string(models.TradeSell), since.UTC()).Scan(&p.Trades, &p.ProfitPct)
	return p, err
}

// CountByReason - число продаж с указанной причиной выхода
func (r *TradeRepository) CountByReason(ctx context.Context, reason string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM trades
		WHERE type = $1 AND reason = $2`

	var n int
	err := r.db.QueryRowContext(ctx, query, string(models.TradeSell), reason).Scan(&n)
	return n, err
}

// ByPair - итоги по парам, самые прибыльные первыми
func (r *TradeRepository) ByPair(ctx context.Context) ([]models.PairStat, error) {
	query := `
		SELECT pair, COUNT(*), COALESCE(SUM(profit_pct), 0) AS total
		FROM trades
		WHERE type = $1
		GROUP BY pair
		ORDER BY total DESC`

	rows, err := r.db.QueryContext(ctx, query, string(models.TradeSell))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []models.PairStat
	for rows.Next() {
		var ps models.PairStat
		if err := rows.Scan(&ps.Pair, &ps.Trades, &ps.ProfitPct); err != nil {
			return nil, err
		}
		stats = append(stats, ps)
	}
	return stats, rows.Err()
}
