package audio

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeParts(t *testing.T, dir string, parts map[string]string) {
	t.Helper()
	for name, data := range parts {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(data), 0o644))
	}
}

func TestOutputName(t *testing.T) {
	tests := []struct {
		part string
		want string
	}{
		{"3-Intro01.mp3", "3-intro.mp3"},
		{"12-Chapter1234.mp3", "12-chapter1.mp3"},
		{"4-Outro.mp3", "4-outro.mp3"},
		{"5-Title-Extra02.mp3", "5-title.mp3"},
		{"6-007.mp3", "6.mp3"},
		{"7-Mix.Final.MP3", "7-mix.mp3"},
		{"notes.txt", "notes.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.part, func(t *testing.T) {
			assert.Equal(t, tt.want, OutputName(tt.part))
		})
	}
}

func TestGroups_ExactNumberAndNaturalOrder(t *testing.T) {
	dir := t.TempDir()
	writeParts(t, dir, map[string]string{
		"1-Intro10.mp3": "c",
		"1-Intro2.mp3":  "b",
		"1-Intro1.mp3":  "a",
		"10-Song1.mp3":  "x",
		"cover.jpg":     "",
	})

	groups, err := Groups(dir)
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, 1, groups[0].Number)
	assert.Equal(t, []string{"1-Intro1.mp3", "1-Intro2.mp3", "1-Intro10.mp3"}, groups[0].Members)
	assert.Equal(t, "1-intro.mp3", groups[0].Output)

	assert.Equal(t, 10, groups[1].Number)
	assert.Equal(t, []string{"10-Song1.mp3"}, groups[1].Members)
}

func TestJoinAll(t *testing.T) {
	dir := t.TempDir()
	writeParts(t, dir, map[string]string{
		"2-Lesson01.mp3": "one-",
		"2-Lesson02.mp3": "two",
		"3-Quiz1.mp3":    "q",
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	outputs, err := JoinAll(context.Background(), dir, logger)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "2-lesson.mp3"), filepath.Join(dir, "3-quiz.mp3")}, outputs)

	data, err := os.ReadFile(filepath.Join(dir, "2-lesson.mp3"))
	require.NoError(t, err)
	assert.Equal(t, "one-two", string(data))
}

func TestJoinAll_RerunReplacesOutput(t *testing.T) {
	dir := t.TempDir()
	writeParts(t, dir, map[string]string{
		"2-Lesson01.mp3": "one-",
		"2-Lesson02.mp3": "two",
	})

	_, err := JoinAll(context.Background(), dir, nil)
	require.NoError(t, err)
	_, err = JoinAll(context.Background(), dir, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "2-lesson.mp3"))
	require.NoError(t, err)
	assert.Equal(t, "one-two", string(data), "the previous output is not joined into itself")
}

func TestGroups_MissingDir(t *testing.T) {
	_, err := Groups(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
