package library

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/franz/lappi/internal/files"
	"github.com/franz/lappi/internal/folders"
	"github.com/franz/lappi/internal/util"
)

const (
	maxComponentLen = 200

	// maxAlternates bounds the " (n)" variants tried for a taken path
	maxAlternates = 100
)

var illegalChars = strings.NewReplacer(
	"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
	"\"", "_", "<", "_", ">", "_", "|", "_",
)

// SanitizeComponent turns a name into a single path element: NFC
// normalized, no characters that are illegal on common filesystems, no
// leading or trailing dots and spaces, at most 200 bytes.
func SanitizeComponent(s string) string {
	s = norm.NFC.String(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	s = illegalChars.Replace(s)

	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}

	// Trim spaces and dots (Windows issues)
	s = strings.Trim(s, " .")

	if len(s) > maxComponentLen {
		cut := maxComponentLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = strings.TrimRight(s[:cut], " _.")
	}

	if s == "" {
		return "Unknown"
	}
	return s
}

// folderPath is the sanitized chain of a folder, "" for the root
func (l *Library) folderPath(folderID int64) (files.InternalPath, error) {
	names, err := l.h.ChainNames(folderID)
	if err != nil {
		return "", err
	}
	for i, name := range names {
		names[i] = SanitizeComponent(name)
	}
	return files.NewInternalPath(names...), nil
}

func inFolder(dir files.InternalPath, name string) files.InternalPath {
	if dir == "" {
		return files.InternalPath(name)
	}
	return dir.Join(name)
}

// ItemCaption is how a music item is named on disk, without extension:
// "<track> - <name>" when it has an effective track tag, else "<name>".
func (l *Library) ItemCaption(itemID int64) (string, error) {
	item, err := l.Item(itemID)
	if err != nil {
		return "", err
	}
	track, ok, err := l.h.EffectiveTag(itemID, TagTrack)
	if err != nil {
		return "", err
	}
	if ok && track.Kind != folders.KindFlag && track.Text() != "" {
		return fmt.Sprintf("%s - %s", track.Text(), item.Name), nil
	}
	return item.Name, nil
}

// MusicPath returns the canonical internal path of an item's music file.
// ok is false when the item has no music file.
func (l *Library) MusicPath(itemID int64) (p files.InternalPath, ok bool, err error) {
	mf, ok, err := l.MusicFile(itemID)
	if err != nil || !ok {
		return "", false, err
	}
	p, err = l.musicPathFor(itemID, mf.Type)
	return p, err == nil, err
}

func (l *Library) musicPathFor(itemID int64, typ FileType) (files.InternalPath, error) {
	item, err := l.Item(itemID)
	if err != nil {
		return "", err
	}
	dir, err := l.folderPath(item.FolderID)
	if err != nil {
		return "", err
	}
	caption, err := l.ItemCaption(itemID)
	if err != nil {
		return "", err
	}
	return inFolder(dir, SanitizeComponent(caption)+typ.Ext()), nil
}

// LyricsPath returns the canonical internal path of a lyrics file
func (l *Library) LyricsPath(lyricsID int64) (files.InternalPath, error) {
	ly, err := l.Lyrics(lyricsID)
	if err != nil {
		return "", err
	}
	return l.lyricsPathFor(ly.ItemID, ly.Lang)
}

func (l *Library) lyricsPathFor(itemID int64, lang string) (files.InternalPath, error) {
	item, err := l.Item(itemID)
	if err != nil {
		return "", err
	}
	dir, err := l.folderPath(item.FolderID)
	if err != nil {
		return "", err
	}
	caption, err := l.ItemCaption(itemID)
	if err != nil {
		return "", err
	}
	return inFolder(dir, fmt.Sprintf("%s.%s.txt", SanitizeComponent(caption), SanitizeComponent(lang))), nil
}

// PicturePath returns the canonical internal path of a picture
func (l *Library) PicturePath(pictureID int64) (files.InternalPath, error) {
	pic, err := l.Picture(pictureID)
	if err != nil {
		return "", err
	}
	return l.picturePathFor(pic.ID, pic.FolderID, pic.Extension)
}

func (l *Library) picturePathFor(id, folderID int64, ext string) (files.InternalPath, error) {
	dir, err := l.folderPath(folderID)
	if err != nil {
		return "", err
	}
	return inFolder(dir, "pictures").Join(fmt.Sprintf("%d.%s", id, ext)), nil
}

// CoverPath returns the canonical internal path of a folder cover with the
// given extension (without dot)
func (l *Library) CoverPath(folderID int64, ext string) (files.InternalPath, error) {
	dir, err := l.folderPath(folderID)
	if err != nil {
		return "", err
	}
	return inFolder(dir, "cover."+ext), nil
}

// DescriptionPath returns the canonical internal path of a folder description
func (l *Library) DescriptionPath(folderID int64) (files.InternalPath, error) {
	dir, err := l.folderPath(folderID)
	if err != nil {
		return "", err
	}
	return inFolder(dir, "about.txt"), nil
}

// alternatePath is p with " (n)" before its extension
func alternatePath(p files.InternalPath, n int) files.InternalPath {
	ext := p.Ext()
	name := fmt.Sprintf("%s (%d)%s", strings.TrimSuffix(p.Base(), ext), n, ext)
	if dir := p.Dir(); dir != "." {
		return dir.Join(name)
	}
	return files.InternalPath(name)
}

// registerFree registers p, or its first free alternate when another file
// holds p. Such a file keeps its alternate name until p is released.
func (l *Library) registerFree(p files.InternalPath) (int64, error) {
	id, err := l.reg.Register(p)
	for n := 2; errors.Is(err, util.ErrConflict) && n <= maxAlternates; n++ {
		id, err = l.reg.Register(alternatePath(p, n))
	}
	return id, err
}

// importFree is registerFree for Import
func (l *Library) importFree(ctx context.Context, src string, p files.InternalPath) (int64, error) {
	id, _, err := l.reg.Import(ctx, src, p)
	for n := 2; errors.Is(err, util.ErrConflict) && n <= maxAlternates; n++ {
		id, _, err = l.reg.Import(ctx, src, alternatePath(p, n))
	}
	return id, err
}
