package outcome

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"schemapipe/pkg/contracts/domain"
)

// AuditLog is the append-only JSONL history of processed files.
type AuditLog struct {
	path   string
	logger *slog.Logger

	mu sync.Mutex
}

// NewAuditLog creates an audit log backed by the given file.
func NewAuditLog(path string, logger *slog.Logger) *AuditLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLog{path: path, logger: logger}
}

// Append writes one record as a JSON line. The line lands in a single
// append write, so records from concurrent workers never interleave.
func (a *AuditLog) Append(record *domain.OutcomeRecord) error {
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode outcome record: %w", err)
	}
	line = append(line, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(a.path), 0755); err != nil {
		return fmt.Errorf("create audit directory: %w", err)
	}
	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("append outcome record: %w", err)
	}
	return f.Close()
}

// Recent returns the newest records first. A limit of zero or less returns
// the full history. A missing audit file is an empty history, not an error.
func (a *AuditLog) Recent(limit int) ([]domain.OutcomeRecord, error) {
	a.mu.Lock()
	data, err := os.ReadFile(a.path)
	a.mu.Unlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read audit log: %w", err)
	}

	var records []domain.OutcomeRecord
	for _, line := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var rec domain.OutcomeRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			a.logger.Warn("skipping corrupt audit record",
				slog.String("path", a.path),
				slog.String("error", err.Error()))
			continue
		}
		records = append(records, rec)
	}

	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
