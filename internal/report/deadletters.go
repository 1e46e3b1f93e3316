package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Spok95/vetclinic-bot/internal/domain/announcements"
	"github.com/Spok95/vetclinic-bot/internal/jobs"
)

const (
	SheetDead  = "dead_jobs"
	SheetStats = "announcements"

	exportLimit = 10000
)

type DeadSource interface {
	ListDead(ctx context.Context, limit int) ([]jobs.Job, error)
}

type StatsSource interface {
	Stats(ctx context.Context, limit int) ([]announcements.Stat, error)
}

// Write собирает книгу: лист с dead-letter задачами и лист со статистикой рассылок.
func Write(w io.Writer, dead []jobs.Job, stats []announcements.Stat) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), SheetDead); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetStats); err != nil {
		return fmt.Errorf("new sheet: %w", err)
	}

	header := []interface{}{"job_id", "kind", "attempts", "max_attempts", "last_error", "payload", "created_at", "updated_at"}
	if err := f.SetSheetRow(SheetDead, "A1", &header); err != nil {
		return fmt.Errorf("header: %w", err)
	}
	for i, j := range dead {
		row := []interface{}{
			j.ID.String(),
			j.Kind,
			j.Attempts,
			j.MaxAttempts,
			j.LastError,
			string(j.Payload),
			j.CreatedAt.UTC().Format(time.RFC3339),
			j.UpdatedAt.UTC().Format(time.RFC3339),
		}
		if err := setRow(f, SheetDead, i+2, row); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(SheetDead, "A", "A", 38)
	_ = f.SetColWidth(SheetDead, "E", "F", 60)

	header = []interface{}{"announcement_id", "title", "dispatches", "targeted", "delivered"}
	if err := f.SetSheetRow(SheetStats, "A1", &header); err != nil {
		return fmt.Errorf("header: %w", err)
	}
	for i, s := range stats {
		row := []interface{}{s.AnnouncementID, s.Title, s.Dispatches, s.Targeted, s.Delivered}
		if err := setRow(f, SheetStats, i+2, row); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(SheetStats, "B", "B", 40)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, n int, row []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &row); err != nil {
		return fmt.Errorf("%s row %d: %w", sheet, n, err)
	}
	return nil
}

// Export выгружает отчёт в файл и возвращает число dead-letter задач.
func Export(ctx context.Context, dead DeadSource, stats StatsSource, path string) (int, error) {
	js, err := dead.ListDead(ctx, exportLimit)
	if err != nil {
		return 0, fmt.Errorf("list dead jobs: %w", err)
	}
	ss, err := stats.Stats(ctx, exportLimit)
	if err != nil {
		return 0, fmt.Errorf("announcement stats: %w", err)
	}

	buf := &bytes.Buffer{}
	if err := Write(buf, js, ss); err != nil {
		return 0, err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return 0, fmt.Errorf("save %s: %w", path, err)
	}
	return len(js), nil
}
