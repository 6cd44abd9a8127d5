package dataset

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Create a project in Linear":    "create-a-project-in-linear",
		"click-by-text Create project":  "click-by-text-create-project",
		"  spaces   everywhere  ":       "spaces-everywhere",
		"Überraschung! (100%)":          "überraschung-100",
		"":                              "",
		"---":                           "",
		"search on youtube for lo-fi??": "search-on-youtube-for-lo-fi",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slugify(in), "input %q", in)
	}
}

func TestSlugifyBoundsLength(t *testing.T) {
	long := ""
	for i := 0; i < 40; i++ {
		long += "word "
	}
	assert.LessOrEqual(t, len(Slugify(long)), maxSlugLen)
}

func TestPersistWritesDeterministicNames(t *testing.T) {
	root := t.TempDir()
	store, err := NewFileStore(root, "create-a-project", zaptest.NewLogger(t))
	require.NoError(t, err)

	name, err := store.Persist(3, "click-by-text Create project", []byte("png-bytes"), StateRecord{
		Index:       3,
		URL:         "https://linear.app/projects",
		Timestamp:   Timestamp(time.Now()),
		Fingerprint: "abc123",
		Step:        "click-by-text Create project",
	})
	require.NoError(t, err)
	assert.Equal(t, "003_click-by-text-create-project.png", name)

	shot, err := os.ReadFile(filepath.Join(store.TaskDir(), name))
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), shot)

	meta, err := os.ReadFile(filepath.Join(store.TaskDir(), "003_click-by-text-create-project.json"))
	require.NoError(t, err)

	var record StateRecord
	require.NoError(t, json.Unmarshal(meta, &record))
	assert.Equal(t, 3, record.Index)
	assert.Equal(t, "https://linear.app/projects", record.URL)
	assert.Equal(t, name, record.Screenshot)
}

func TestWriteSummaryRoundTrips(t *testing.T) {
	root := t.TempDir()
	store, err := NewFileStore(root, "some-task", zaptest.NewLogger(t))
	require.NoError(t, err)

	summary := RunSummary{
		RunID:        "run-1",
		Task:         "some task",
		TaskSlug:     "some-task",
		Status:       "aborted",
		StartedAt:    Timestamp(time.Now().Add(-time.Minute)),
		FinishedAt:   Timestamp(time.Now()),
		ActionsTotal: 4,
		States: []StateRecord{
			{Index: 1, URL: "https://example.com", Screenshot: "001_initial.png"},
		},
	}
	require.NoError(t, store.WriteSummary(summary))

	// Aborted runs must still leave a loadable manifest.
	data, err := os.ReadFile(filepath.Join(store.TaskDir(), "run_summary.json"))
	require.NoError(t, err)

	var loaded RunSummary
	require.NoError(t, json.Unmarshal(data, &loaded))
	assert.Equal(t, summary.Status, loaded.Status)
	require.Len(t, loaded.States, 1)
	assert.Equal(t, 1, loaded.States[0].Index)
}

func TestTimestampIsUTCISO8601(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	ts := Timestamp(time.Date(2025, 6, 1, 15, 4, 5, 0, loc))
	assert.Equal(t, "2025-06-01T12:04:05Z", ts)
}
