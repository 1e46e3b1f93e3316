package report

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Spok95/vetclinic-bot/internal/domain/announcements"
	"github.com/Spok95/vetclinic-bot/internal/jobs"
)

type fakeSource struct {
	dead  []jobs.Job
	stats []announcements.Stat
}

func (f fakeSource) ListDead(context.Context, int) ([]jobs.Job, error) { return f.dead, nil }

func (f fakeSource) Stats(context.Context, int) ([]announcements.Stat, error) { return f.stats, nil }

func sample() fakeSource {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return fakeSource{
		dead: []jobs.Job{{
			ID:          uuid.MustParse("0b7a2f5e-3b1c-4c8e-9d7e-2f1a6b5c4d3e"),
			Kind:        "announcement.deliver",
			Payload:     json.RawMessage(`{"chat_id":42}`),
			Status:      jobs.StatusDead,
			Attempts:    5,
			MaxAttempts: 5,
			LastError:   "telegram: Forbidden: bot was blocked by the user",
			CreatedAt:   at,
			UpdatedAt:   at.Add(time.Hour),
		}},
		stats: []announcements.Stat{{AnnouncementID: 7, Title: "Holiday hours", Dispatches: 2, Targeted: 10, Delivered: 9}},
	}
}

func TestWrite(t *testing.T) {
	src := sample()
	buf := &bytes.Buffer{}
	require.NoError(t, Write(buf, src.dead, src.stats))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(SheetDead)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "job_id", rows[0][0])
	assert.Equal(t, "0b7a2f5e-3b1c-4c8e-9d7e-2f1a6b5c4d3e", rows[1][0])
	assert.Equal(t, "announcement.deliver", rows[1][1])
	assert.Equal(t, "5", rows[1][2])
	assert.Equal(t, "telegram: Forbidden: bot was blocked by the user", rows[1][4])
	assert.Equal(t, "2026-03-01T10:00:00Z", rows[1][6])

	rows, err = f.GetRows(SheetStats)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"7", "Holiday hours", "2", "10", "9"}, rows[1])
}

func TestExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dead.xlsx")
	src := sample()

	n, err := Export(context.Background(), src, src, path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	assert.Equal(t, []string{SheetDead, SheetStats}, f.GetSheetList())
}

func TestWrite_Empty(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, Write(buf, nil, nil))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	rows, err := f.GetRows(SheetDead)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
