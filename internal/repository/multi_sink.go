package repository

import (
	"context"
	"io"

	"go.uber.org/multierr"

	"cyclebot/internal/models"
)

// TradeAppender - приёмник записей журнала сделок
type TradeAppender interface {
	AppendTrade(ctx context.Context, rec models.TradeRecord) error
}

// MultiSink пишет каждую запись во все приёмники
//
// Ошибка одного приёмника не мешает остальным; ошибки объединяются.
type MultiSink struct {
	sinks []TradeAppender
}

// NewMultiSink создаёт fan-out приёмник; nil приёмники пропускаются
func NewMultiSink(sinks ...TradeAppender) *MultiSink {
	ms := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			ms.sinks = append(ms.sinks, s)
		}
	}
	return ms
}

// Len - число приёмников
func (m *MultiSink) Len() int { return len(m.sinks) }

// AppendTrade пишет запись во все приёмники
func (m *MultiSink) AppendTrade(ctx context.Context, rec models.TradeRecord) error {
	var err error
	for _, s := range m.sinks {
		err = multierr.Append(err, s.AppendTrade(ctx, rec))
	}
	return err
}

// Close закрывает приёмники, реализующие io.Closer
func (m *MultiSink) Close() error {
	var err error
	for _, s := range m.sinks {
		if c, ok := s.(io.Closer); ok {
			err = multierr.Append(err, c.Close())
		}
	}
	return err
}
