// Package audit records every booking submission attempt and exports the
// trail as an Excel workbook for administrators.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

// Entry is one recorded submission attempt.
type Entry struct {
	RequestID string
	UserID    int64
	RoomID    int64
	RoomName  string
	Date      string
	Slots     string
	Success   bool
	Message   string
	CreatedAt time.Time
}

// Service persists audit entries to its own sqlite database.
type Service struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *zerolog.Logger
}

// Open opens (creating if needed) the audit database at path.
func Open(path string, logger *zerolog.Logger) (*Service, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS booking_audit (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id TEXT NOT NULL,
		user_id INTEGER NOT NULL,
		room_id INTEGER NOT NULL,
		room_name TEXT NOT NULL,
		date TEXT NOT NULL,
		slots TEXT NOT NULL,
		success BOOLEAN NOT NULL,
		message TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return nil, fmt.Errorf("create audit table: %w", err)
	}

	return &Service{db: db, logger: logger}, nil
}

// Close closes the audit database.
func (s *Service) Close() error {
	return s.db.Close()
}

// Record appends one submission attempt to the trail.
func (s *Service) Record(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO booking_audit (request_id, user_id, room_id, room_name, date, slots, success, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RequestID, e.UserID, e.RoomID, e.RoomName, e.Date, e.Slots, e.Success, e.Message, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}
	s.logger.Debug().Str("request_id", e.RequestID).Int64("user_id", e.UserID).
		Bool("success", e.Success).Msg("audit entry recorded")
	return nil
}

// List returns entries recorded at or after since, newest first.
func (s *Service) List(ctx context.Context, since time.Time) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT request_id, user_id, room_id, room_name, date, slots, success, message, created_at
		FROM booking_audit WHERE created_at >= ? ORDER BY created_at DESC`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.RequestID, &e.UserID, &e.RoomID, &e.RoomName,
			&e.Date, &e.Slots, &e.Success, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

var exportColumns = []string{
	"Заявка", "Пользователь", "Зал", "Дата", "Слоты", "Результат", "Сообщение", "Время",
}

// ExportExcel writes entries since the given time as an xlsx workbook.
func (s *Service) ExportExcel(ctx context.Context, w io.Writer, since time.Time) error {
	entries, err := s.List(ctx, since)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Бронирования"
	f.SetSheetName("Sheet1", sheet)

	for i, col := range exportColumns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, col); err != nil {
			return err
		}
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		start, _ := excelize.CoordinatesToCellName(1, 1)
		end, _ := excelize.CoordinatesToCellName(len(exportColumns), 1)
		_ = f.SetCellStyle(sheet, start, end, style)
	}

	for row, e := range entries {
		result := "отклонено"
		if e.Success {
			result = "принято"
		}
		values := []any{
			e.RequestID, e.UserID, e.RoomName, e.Date, e.Slots,
			result, e.Message, e.CreatedAt.Format("02.01.2006 15:04"),
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
