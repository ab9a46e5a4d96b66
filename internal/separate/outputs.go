package separate

import (
	"os"
	"path/filepath"
	"strings"
)

// stemSuffixes are appended to the input base name by the inference script.
var (
	vocalStems = []string{"_vocals.wav", "_instrum.wav"}
	extraStems = []string{"_bass.wav", "_drums.wav", "_other.wav"}
)

// ExpectedOutputs lists the stem files a run writes for one input.
func ExpectedOutputs(input, folder string, onlyVocals bool) []string {
	base := filepath.Base(input)
	name := strings.TrimSuffix(base, filepath.Ext(base))

	suffixes := append([]string(nil), vocalStems...)
	if !onlyVocals {
		suffixes = append(suffixes, extraStems...)
	}

	outputs := make([]string, 0, len(suffixes))
	for _, suffix := range suffixes {
		outputs = append(outputs, filepath.Join(folder, name+suffix))
	}
	return outputs
}

// CollectOutputs returns the expected stem files that exist after a run.
func CollectOutputs(params Params) []string {
	return collectOutputs(params, os.Stat)
}

func collectOutputs(params Params, stat func(string) (os.FileInfo, error)) []string {
	var found []string
	for _, input := range params.InputAudio {
		for _, path := range ExpectedOutputs(input, params.OutputFolder, params.OnlyVocals) {
			if info, err := stat(path); err == nil && !info.IsDir() {
				found = append(found, path)
			}
		}
	}
	return found
}
