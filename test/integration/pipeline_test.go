package integration

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agleyzer/segstitch/internal/compile"
	"github.com/agleyzer/segstitch/internal/fetch"
	"github.com/agleyzer/segstitch/internal/mux"
	"github.com/agleyzer/segstitch/internal/probe"
	"github.com/agleyzer/segstitch/internal/series"
)

var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

func segments(t *testing.T, n int) [][]byte {
	t.Helper()
	payload := TransportSegment(t)
	out := make([][]byte, n)
	for i := range out {
		out[i] = payload
	}
	return out
}

func newFetcher(t *testing.T, root string) *fetch.Fetcher {
	client, err := fetch.NewClient(fetch.ProxyConfig{}, 10*time.Second)
	require.NoError(t, err)
	return fetch.New(client, root, fetch.Options{ChunkSize: 100}, logger)
}

func TestFetchAndCompile(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	h := NewTestHarness(t)
	defer h.Cleanup()
	h.AddSeries("lecture1", segments(t, 12))
	h.AddSeries("lecture2", segments(t, 3))
	h.StartHTTPServer()

	root := t.TempDir()
	all := []series.Series{
		{Label: "lecture1", Prefix: h.URL() + "/lecture1/", Suffix: ".ts"},
		{Label: "lecture2", Prefix: h.URL() + "/lecture2/", Suffix: ".ts"},
	}

	reports, err := newFetcher(t, root).FetchAll(context.Background(), all)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Len(t, reports[0].Written, 12)
	assert.Equal(t, 13, reports[0].ExhaustedAt)
	assert.Len(t, reports[1].Written, 3)

	results := compile.New(mux.Bytes{}, root, "", logger).CompileAll(context.Background(), []string{"lecture1", "lecture2"})
	require.Empty(t, compile.Failed(results))

	payload := TransportSegment(t)
	data, err := os.ReadFile(filepath.Join(root, "converted", "lecture1.ts"))
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat(payload, 12), data)

	info, err := probe.Describe(context.Background(), filepath.Join(root, "converted", "lecture2.ts"))
	require.NoError(t, err)
	require.Len(t, info.Streams, 2)
	assert.Equal(t, "H.264-Video", info.Streams[0].Name)
	assert.Equal(t, "AAC-Audio", info.Streams[1].Name)
}

func TestResumeSkipsExistingSegments(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	h := NewTestHarness(t)
	defer h.Cleanup()
	h.AddSeries("talk", segments(t, 4))
	h.StartHTTPServer()

	root := t.TempDir()
	s := series.Series{Label: "talk", Prefix: h.URL() + "/talk/", Suffix: ".ts"}
	f := newFetcher(t, root)

	_, err := f.Fetch(context.Background(), s)
	require.NoError(t, err)

	report, err := f.Fetch(context.Background(), s)
	require.NoError(t, err)
	assert.Empty(t, report.Written)
	assert.Equal(t, []int{1, 2, 3, 4}, report.Skipped)
	assert.Equal(t, 5, report.ExhaustedAt)
	assert.Equal(t, 2, h.Requests("/talk/1.ts"), "every index is requested before the file check")
}

func TestPlaylistBoundsSeries(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	h := NewTestHarness(t)
	defer h.Cleanup()
	h.AddSeries("low", segments(t, 10))
	h.AddSeries("high", segments(t, 10))
	h.AddMediaPlaylist("low", 2)
	h.AddMediaPlaylist("high", 5)
	h.AddMasterPlaylist("master", map[uint32]string{800000: "low", 2400000: "high"})
	h.StartHTTPServer()

	root := t.TempDir()
	f := newFetcher(t, root)

	report, err := f.Fetch(context.Background(), series.Series{
		Label:    "media",
		Prefix:   h.URL() + "/low/",
		Suffix:   ".ts",
		Playlist: h.URL() + "/low.m3u8",
	})
	require.NoError(t, err)
	assert.Len(t, report.Written, 2)
	assert.False(t, report.Exhausted)

	report, err = f.Fetch(context.Background(), series.Series{
		Label:    "master",
		Prefix:   h.URL() + "/high/",
		Suffix:   ".ts",
		Playlist: h.URL() + "/master.m3u8",
	})
	require.NoError(t, err)
	assert.Len(t, report.Written, 5, "the highest bandwidth variant bounds the series")
	assert.Zero(t, h.Requests("/high/6.ts"))
}

func TestCompileWithFFmpeg(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	binary, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not installed")
	}

	h := NewTestHarness(t)
	defer h.Cleanup()
	h.AddSeries("clip", segments(t, 3))
	h.StartHTTPServer()

	root := t.TempDir()
	_, err = newFetcher(t, root).Fetch(context.Background(), series.Series{
		Label: "clip", Prefix: h.URL() + "/clip/", Suffix: ".ts",
	})
	require.NoError(t, err)

	result := compile.New(mux.NewFFmpeg(binary, nil), root, "", logger).Compile(context.Background(), "clip")
	if result.Err != nil {
		// Segments carrying only tables have no media for ffmpeg to copy.
		var muxErr *mux.Error
		require.ErrorAs(t, result.Err, &muxErr)
		t.Logf("ffmpeg rejected table-only input: %v", muxErr)
		return
	}
	assert.FileExists(t, result.Output)
}

func TestBinaryFetchAndCompile(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	binary := findSegstitchBinary(t)

	h := NewTestHarness(t)
	defer h.Cleanup()
	h.AddSeries("seminar", segments(t, 6))
	h.StartHTTPServer()

	root := t.TempDir()
	fetchCmd := exec.Command(binary, "fetch", "--quiet",
		"--root", root,
		"--label", "seminar",
		"--prefix", h.URL()+"/seminar/",
		"--suffix", ".ts",
	)
	out, err := fetchCmd.CombinedOutput()
	require.NoError(t, err, string(out))

	compileCmd := exec.Command(binary, "compile", "--raw", "--root", root, "seminar")
	out, err = compileCmd.CombinedOutput()
	require.NoError(t, err, string(out))

	st, err := os.Stat(filepath.Join(root, "converted", "seminar.ts"))
	require.NoError(t, err)
	assert.Equal(t, int64(6*len(TransportSegment(t))), st.Size())
}
