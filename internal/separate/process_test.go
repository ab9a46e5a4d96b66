package separate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"music-separator/internal/domain"
)

// fakeRunner replays scripted output lines and returns a fixed result.
type fakeRunner struct {
	lines    []string
	exitCode int
	err      error

	name string
	args []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args []string, onLine func(string)) (int, error) {
	f.name = name
	f.args = args
	for _, line := range f.lines {
		onLine(line)
	}
	return f.exitCode, f.err
}

func testParams() Params {
	return Params{
		InputAudio:   []string{"/in/song.mp3", "/in/take.wav"},
		OutputFolder: "/out",
		ChunkSize:    1000000,
		OverlapLarge: 0.6,
		OverlapSmall: 0.5,
	}
}

// TestParamsFromOptions checks the settings-to-parameter mapping.
func TestParamsFromOptions(t *testing.T) {
	opts := domain.JobOptions{
		Files:        []string{"a.wav"},
		OutputFolder: "/out",
		Settings: domain.Settings{
			UseCPU:           true,
			SingleONNX:       true,
			LargeGPU:         false,
			UseOldVocalModel: true,
			OnlyVocals:       true,
			ChunkSize:        500000,
			OverlapLarge:     0.25,
			OverlapSmall:     0.75,
		},
	}

	got := ParamsFromOptions(opts)

	assert.Equal(t, Params{
		InputAudio:   []string{"a.wav"},
		OutputFolder: "/out",
		CPU:          true,
		SingleONNX:   true,
		ChunkSize:    500000,
		OverlapLarge: 0.25,
		OverlapSmall: 0.75,
		UseKimModel1: true,
		OnlyVocals:   true,
	}, got)

	opts.Files[0] = "changed.wav"
	assert.Equal(t, "a.wav", got.InputAudio[0])
}

// TestBuildArgs checks positional order and optional flags.
func TestBuildArgs(t *testing.T) {
	params := testParams()
	params.CPU = true
	params.OnlyVocals = true

	got := BuildArgs("inference.py", params)

	assert.Equal(t, []string{
		"inference.py",
		"--input_audio", "/in/song.mp3", "/in/take.wav",
		"--output_folder", "/out",
		"--chunk_size", "1000000",
		"--overlap_large", "0.6",
		"--overlap_small", "0.5",
		"--cpu",
		"--only_vocals",
	}, got)
}

// TestSeparateReportsDistinctProgress checks parsing and duplicate suppression.
func TestSeparateReportsDistinctProgress(t *testing.T) {
	runner := &fakeRunner{lines: []string{
		"Loading models",
		" 10%|#         | 1/10",
		" 10%|#         | 1/10",
		"",
		" 40%|####      | 4/10",
		" 90%|######### | 9/10",
	}}
	process := NewProcessForTests("python3", "inference.py", runner)

	var got []int
	err := process.Separate(context.Background(), testParams(), func(percent int) {
		got = append(got, percent)
	})

	require.NoError(t, err)
	assert.Equal(t, []int{10, 40, 90}, got)
	assert.Equal(t, "python3", runner.name)
	assert.Equal(t, "inference.py", runner.args[0])
}

// TestSeparateFailureUsesLastMessage checks the routine error text is kept verbatim.
func TestSeparateFailureUsesLastMessage(t *testing.T) {
	runner := &fakeRunner{
		lines: []string{
			" 20%|##        |",
			"Traceback (most recent call last):",
			"RuntimeError: CUDA out of memory",
			" 20%|##        |",
		},
		exitCode: 1,
		err:      errors.New("exit status 1"),
	}
	process := NewProcessForTests("python3", "inference.py", runner)

	err := process.Separate(context.Background(), testParams(), nil)

	var routineErr *RoutineError
	require.True(t, errors.As(err, &routineErr))
	assert.Equal(t, "RuntimeError: CUDA out of memory", routineErr.Error())
	assert.Equal(t, 1, routineErr.ExitCode)
}

// TestSeparateFailureMessageMentioningPercent checks an error line with a
// percent sign is kept as the message and not reported as progress.
func TestSeparateFailureMessageMentioningPercent(t *testing.T) {
	runner := &fakeRunner{
		lines: []string{
			" 50%|#####     |",
			"Traceback (most recent call last):",
			"ValueError: overlap_large must be below 100%",
		},
		exitCode: 1,
		err:      errors.New("exit status 1"),
	}
	process := NewProcessForTests("python3", "inference.py", runner)

	var progress []int
	err := process.Separate(context.Background(), testParams(), func(percent int) {
		progress = append(progress, percent)
	})

	var routineErr *RoutineError
	require.True(t, errors.As(err, &routineErr))
	assert.Equal(t, "ValueError: overlap_large must be below 100%", routineErr.Error())
	assert.Equal(t, []int{50}, progress)
}

// TestSeparateFailureWithoutOutput falls back to the process error.
func TestSeparateFailureWithoutOutput(t *testing.T) {
	runner := &fakeRunner{exitCode: -1, err: errors.New("start python3: not found")}
	process := NewProcessForTests("python3", "inference.py", runner)

	err := process.Separate(context.Background(), testParams(), nil)

	require.Error(t, err)
	assert.Equal(t, "start python3: not found", err.Error())
}

// TestSeparateRequiresInput checks an empty input list is rejected before running.
func TestSeparateRequiresInput(t *testing.T) {
	runner := &fakeRunner{}
	process := NewProcessForTests("python3", "inference.py", runner)

	err := process.Separate(context.Background(), Params{OutputFolder: "/out"}, nil)

	require.Error(t, err)
	assert.Empty(t, runner.name)
}

// TestScanLinesSplitsCarriageReturns checks progress redraws become separate lines.
func TestScanLinesSplitsCarriageReturns(t *testing.T) {
	var lines []string
	err := scanLines(strings.NewReader("start\n 5%\r 6%\r 7%\ndone"), func(line string) {
		lines = append(lines, line)
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"start", " 5%", " 6%", " 7%", "done"}, lines)
}

// TestParsePercent checks token extraction.
func TestParsePercent(t *testing.T) {
	tests := []struct {
		line string
		want int
		ok   bool
	}{
		{line: "100%|##########| 10/10", want: 100, ok: true},
		{line: "  7%|", want: 7, ok: true},
		{line: "Separating:  42%|####2     | 42/100", want: 42, ok: true},
		{line: "ValueError: overlap_large must be below 100%"},
		{line: "GPU memory usage at 93% | 11.2 GiB"},
		{line: "no progress here"},
		{line: "%"},
	}

	for _, tc := range tests {
		got, ok := parsePercent(tc.line)
		assert.Equal(t, tc.ok, ok, tc.line)
		assert.Equal(t, tc.want, got, tc.line)
	}
}

// TestExpectedOutputs checks stem naming for full and vocals-only runs.
func TestExpectedOutputs(t *testing.T) {
	full := ExpectedOutputs("/in/My Song.flac", "/out", false)
	assert.Equal(t, []string{
		filepath.Join("/out", "My Song_vocals.wav"),
		filepath.Join("/out", "My Song_instrum.wav"),
		filepath.Join("/out", "My Song_bass.wav"),
		filepath.Join("/out", "My Song_drums.wav"),
		filepath.Join("/out", "My Song_other.wav"),
	}, full)

	vocals := ExpectedOutputs("/in/My Song.flac", "/out", true)
	assert.Len(t, vocals, 2)
}

// TestCollectOutputsReturnsExisting checks only written stems are reported.
func TestCollectOutputsReturnsExisting(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"song_vocals.wav", "song_instrum.wav"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	got := CollectOutputs(Params{InputAudio: []string{"/in/song.mp3"}, OutputFolder: dir})

	assert.Equal(t, []string{
		filepath.Join(dir, "song_vocals.wav"),
		filepath.Join(dir, "song_instrum.wav"),
	}, got)
}
