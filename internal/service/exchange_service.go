package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"cyclebot/internal/exchange"
	"cyclebot/pkg/crypto"
	"cyclebot/pkg/retry"
	"cyclebot/pkg/utils"
)

// Ошибки сервиса
var (
	ErrExchangeNotSupported = errors.New("exchange is not supported")
	ErrInvalidCredentials   = errors.New("invalid API credentials")
	ErrConnectionFailed     = errors.New("failed to connect to exchange")
	ErrExchangeNotConnected = errors.New("exchange is not connected")
)

// ExchangeService - подключение к бирже по настройкам процесса
//
// Ключи в настройках могут быть зашифрованы (префикс enc:); расшифровываются
// только в момент подключения. Соединение одно на процесс.
type ExchangeService struct {
	opts          exchange.Options
	encryptionKey []byte
	ping          retry.Config

	// фабрика подменяется в тестах
	newExchange func(exchange.Options) (exchange.Exchange, error)

	mu   sync.RWMutex
	conn exchange.Exchange

	log *utils.Logger
}

// NewExchangeService создает новый экземпляр сервиса
func NewExchangeService(opts exchange.Options, encryptionKey []byte) *ExchangeService {
	return &ExchangeService{
		opts:          opts,
		encryptionKey: encryptionKey,
		ping:          retry.NetworkConfig(),
		newExchange:   exchange.NewExchange,
		log:           utils.L().WithComponent("exchange"),
	}
}

// Connect создаёт биржу и проверяет её доступность
//
// Выполняет:
// 1. Проверку поддержки биржи
// 2. Расшифровку ключей
// 3. Тестовый запрос с повторами (проверка ключей)
//
// Повторный вызов возвращает существующее соединение.
func (s *ExchangeService) Connect(ctx context.Context) (exchange.Exchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return s.conn, nil
	}

	name := strings.ToLower(s.opts.Name)
	if !exchange.IsSupported(name) {
		return nil, ErrExchangeNotSupported
	}

	opts := s.opts
	opts.Name = name
	var err error
	if opts.BTCTurk.APIKey, err = crypto.OpenSecret(opts.BTCTurk.APIKey, s.encryptionKey); err != nil {
		return nil, errors.Join(ErrInvalidCredentials, err)
	}
	if opts.BTCTurk.APISecret, err = crypto.OpenSecret(opts.BTCTurk.APISecret, s.encryptionKey); err != nil {
		return nil, errors.Join(ErrInvalidCredentials, err)
	}

	exch, err := s.newExchange(opts)
	if err != nil {
		return nil, err
	}

	cfg := s.ping
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		s.log.Warn("Exchange ping failed, retrying",
			utils.Int("attempt", attempt),
			utils.Err(err),
			utils.Duration("delay", delay))
	}
	if err := retry.Do(ctx, func() error { return exch.Ping(ctx) }, cfg); err != nil {
		_ = exch.Close()
		return nil, errors.Join(ErrConnectionFailed, err)
	}

	s.conn = exch
	s.log.Info("Exchange connected", utils.String("exchange", exch.Name()))
	return exch, nil
}

// Connection - текущее соединение
func (s *ExchangeService) Connection() (exchange.Exchange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conn == nil {
		return nil, ErrExchangeNotConnected
	}
	return s.conn, nil
}

// Close закрывает соединение с биржей
// Вызывается при graceful shutdown
func (s *ExchangeService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
