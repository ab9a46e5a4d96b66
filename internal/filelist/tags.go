package filelist

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dhowden/tag"
)

// Tags is the display metadata of one input file.
type Tags struct {
	Path        string `json:"path"`
	DisplayName string `json:"displayName"`
	Title       string `json:"title,omitempty"`
	Artist      string `json:"artist,omitempty"`
	Album       string `json:"album,omitempty"`
	Format      string `json:"format,omitempty"`
}

// DisplayName returns the base name shown in the input list.
func DisplayName(path string) string {
	return filepath.Base(path)
}

// ReadTags reads embedded metadata. Files without tags (plain WAV is common)
// return only the path and display name.
func ReadTags(path string) (Tags, error) {
	out := Tags{Path: path, DisplayName: DisplayName(path)}

	file, err := os.Open(path)
	if err != nil {
		return out, errors.Wrapf(err, "open %s", path)
	}
	defer file.Close()

	meta, err := tag.ReadFrom(file)
	if err != nil {
		if errors.Is(err, tag.ErrNoTagsFound) {
			return out, nil
		}
		return out, errors.Wrapf(err, "read tags of %s", path)
	}

	out.Title = strings.TrimSpace(meta.Title())
	out.Artist = strings.TrimSpace(meta.Artist())
	out.Album = strings.TrimSpace(meta.Album())
	out.Format = string(meta.FileType())
	if out.Title != "" {
		out.DisplayName = out.Title
		if out.Artist != "" {
			out.DisplayName = out.Artist + " - " + out.Title
		}
	}
	return out, nil
}
