package repository

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"cyclebot/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONLLedger - журнал сделок в файле, одна JSON-запись на строку
//
// Файл только дописывается; каждая запись синхронизируется на диск.
// Используется без БД и как резервная копия рядом с SQL журналом.
type JSONLLedger struct {
	path string

	mu sync.Mutex
	f  *os.File
}

// OpenJSONLLedger открывает (или создаёт) файл журнала
func OpenJSONLLedger(path string) (*JSONLLedger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return &JSONLLedger{path: path, f: f}, nil
}

// Path - путь к файлу
func (l *JSONLLedger) Path() string { return l.path }

// AppendTrade дописывает запись
func (l *JSONLLedger) AppendTrade(ctx context.Context, rec models.TradeRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode trade: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		return os.ErrClosed
	}
	if _, err := l.f.Write(line); err != nil {
		return fmt.Errorf("write trade: %w", err)
	}
	return l.f.Sync()
}

// ReadAll читает все записи файла по порядку
//
// Повреждённая последняя строка (обрыв записи) пропускается.
func (l *JSONLLedger) ReadAll() ([]models.TradeRecord, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	return decodeLines(f)
}

// ListSince - записи начиная с since
func (l *JSONLLedger) ListSince(ctx context.Context, since time.Time) ([]models.TradeRecord, error) {
	all, err := l.ReadAll()
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, rec := range all {
		if !rec.Timestamp.Before(since) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Close закрывает файл
func (l *JSONLLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

func decodeLines(r io.Reader) ([]models.TradeRecord, error) {
	var records []models.TradeRecord
	var pending error

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for line := 1; sc.Scan(); line++ {
		if pending != nil {
			// ошибка не в последней строке - файл повреждён
			return nil, pending
		}
		b := sc.Bytes()
		if len(b) == 0 {
			continue
		}
		var rec models.TradeRecord
		if err := json.Unmarshal(b, &rec); err != nil {
			pending = fmt.Errorf("ledger line %d: %w", line, err)
			continue
		}
		records = append(records, rec)
	}
	return records, sc.Err()
}
