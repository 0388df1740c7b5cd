// Package organizer moves completed downloads into a library's
// category-specific folder layout, and can reverse the move.
package organizer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/animedb/animedb-node/internal/store"
)

var sanitizeRe = regexp.MustCompile(`[:<>"|?*]`)
var whitespaceRe = regexp.MustCompile(`\s+`)

// Sanitize strips filesystem-hostile characters and collapses whitespace,
// matching the layout rule for file and directory name components.
func Sanitize(name string) string {
	cleaned := sanitizeRe.ReplaceAllString(name, "")
	cleaned = whitespaceRe.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}

func categoryDir(c store.Category) string {
	switch c {
	case store.CategoryMovies:
		return "Movies"
	case store.CategoryTV:
		return "Series"
	default:
		return "Other"
	}
}

// TargetPath computes the destination path for d once moved into library,
// without touching the filesystem.
func TargetPath(d *store.Download, library *store.Library) string {
	title := Sanitize(d.Title)
	if title == "" {
		title = "Untitled"
	}
	dir := filepath.Join(library.Path, categoryDir(d.Category), title)

	if d.Category == store.CategoryTV {
		season := 1
		episode := 1
		if d.Season != nil {
			season = *d.Season
		}
		if d.Episode != nil {
			episode = *d.Episode
		}
		dir = filepath.Join(dir, fmt.Sprintf("Season %02d", season))
		name := fmt.Sprintf("S%02dE%02d%s", season, episode, ext(d.FilePath))
		return filepath.Join(dir, Sanitize(name))
	}

	name := title + ext(d.FilePath)
	return filepath.Join(dir, Sanitize(name))
}

func ext(filePath *string) string {
	if filePath == nil {
		return ""
	}
	return filepath.Ext(*filePath)
}

// Move copies a completed download's file into library's layout and returns
// the new absolute path. The caller is responsible for updating the Store row.
func Move(d *store.Download, library *store.Library) (string, error) {
	if d.Status != store.StatusCompleted {
		return "", fmt.Errorf("organizer: download %s is not completed", d.ID)
	}
	if d.FilePath == nil {
		return "", fmt.Errorf("organizer: download %s has no file path", d.ID)
	}
	dest := TargetPath(d, library)
	if err := copyFile(*d.FilePath, dest); err != nil {
		return "", err
	}
	if err := os.Remove(*d.FilePath); err != nil {
		return "", fmt.Errorf("organizer: remove source after move: %w", err)
	}
	return dest, nil
}

// Unmove reverses Move, copying the library-resident file back to
// <downloadRoot>/<id>/<id><ext> and returning that path.
func Unmove(d *store.Download, downloadRoot string) (string, error) {
	if d.FilePath == nil {
		return "", fmt.Errorf("organizer: download %s has no file path", d.ID)
	}
	dest := filepath.Join(downloadRoot, d.ID, d.ID+ext(d.FilePath))
	if err := copyFile(*d.FilePath, dest); err != nil {
		return "", err
	}
	if err := os.Remove(*d.FilePath); err != nil {
		return "", fmt.Errorf("organizer: remove source after unmove: %w", err)
	}
	return dest, nil
}

func copyFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("organizer: mkdir %s: %w", filepath.Dir(dest), err)
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("organizer: open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("organizer: create destination: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("organizer: copy: %w", err)
	}
	return out.Close()
}

// DetectCategory infers a library's category from its name, used by the
// libraries-scan endpoint for directories not yet registered.
func DetectCategory(name string) store.Category {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "movie"), strings.Contains(lower, "film"):
		return store.CategoryMovies
	case strings.Contains(lower, "series"), strings.Contains(lower, "tv"),
		strings.Contains(lower, "show"), strings.Contains(lower, "anime"),
		strings.Contains(lower, "season"):
		return store.CategoryTV
	default:
		return store.CategoryOther
	}
}
