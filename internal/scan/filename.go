package scan

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

const (
	unknownArtist = "Unknown Artist"
	unknownAlbum  = "Unknown Album"
)

// Track is what the scanner knows about one source file before placing it
type Track struct {
	Path   string
	Artist string
	Album  string
	Title  string
	Number int
}

var filenamePatterns = []struct {
	re    *regexp.Regexp
	parse func(t *Track, m []string)
}{
	{
		// "01 - Title.mp3"
		re: regexp.MustCompile(`^(\d+)\s*-\s*(.+)$`),
		parse: func(t *Track, m []string) {
			t.Number, _ = strconv.Atoi(m[1])
			t.Title = strings.TrimSpace(m[2])
		},
	},
	{
		// "01.Title.mp3" or "01_Title.mp3"
		re: regexp.MustCompile(`^(\d+)[._]\s*(.+)$`),
		parse: func(t *Track, m []string) {
			t.Number, _ = strconv.Atoi(m[1])
			t.Title = strings.TrimSpace(strings.ReplaceAll(m[2], "_", " "))
		},
	},
	{
		// "01 Title.mp3"
		re: regexp.MustCompile(`^(\d{1,3})\s+(.+)$`),
		parse: func(t *Track, m []string) {
			t.Number, _ = strconv.Atoi(m[1])
			t.Title = strings.TrimSpace(m[2])
		},
	},
}

// parsePath guesses a track from its location under source: the file name
// gives number and title, the two enclosing directories artist and album.
func parsePath(source, path string) *Track {
	t := &Track{Path: path}

	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	t.Title = strings.TrimSpace(name)
	for _, p := range filenamePatterns {
		if m := p.re.FindStringSubmatch(name); m != nil {
			p.parse(t, m)
			break
		}
	}

	var dirs []string
	if rel, err := filepath.Rel(source, filepath.Dir(path)); err == nil && rel != "." {
		dirs = strings.Split(filepath.ToSlash(rel), "/")
	}
	if n := len(dirs); n >= 1 {
		t.Album = dirs[n-1]
		if n >= 2 {
			t.Artist = dirs[n-2]
		}
	}
	return t
}

// merge prefers embedded values over the ones guessed from the path
func (t *Track) merge(title, artist, album string, number int) {
	if title != "" {
		t.Title = title
	}
	if artist != "" {
		t.Artist = artist
	}
	if album != "" {
		t.Album = album
	}
	if number > 0 {
		t.Number = number
	}
}

func (t *Track) fillUnknown() {
	if strings.TrimSpace(t.Artist) == "" {
		t.Artist = unknownArtist
	}
	if strings.TrimSpace(t.Album) == "" {
		t.Album = unknownAlbum
	}
	if strings.TrimSpace(t.Title) == "" {
		t.Title = strings.TrimSuffix(filepath.Base(t.Path), filepath.Ext(t.Path))
	}
}
