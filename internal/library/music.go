package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dhowden/tag"

	"github.com/franz/lappi/internal/folders"
	"github.com/franz/lappi/internal/notify"
	"github.com/franz/lappi/internal/store"
	"github.com/franz/lappi/internal/util"
)

// MusicFile is the source file of a music item
type MusicFile struct {
	ItemID int64
	FileID int64
	Type   FileType
}

// MusicFile returns the music file of an item, if it has one
func (l *Library) MusicFile(itemID int64) (MusicFile, bool, error) {
	mf := MusicFile{ItemID: itemID}
	found := false
	err := l.db.Read(func(conn *store.Conn) error {
		err := conn.QueryRow("SELECT internal_file_id, file_type FROM music_files WHERE id = ?", itemID).
			Scan(&mf.FileID, &mf.Type)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		found = err == nil
		return err
	})
	return mf, found, err
}

// EmbeddedTags is the metadata a music file carries itself
type EmbeddedTags struct {
	Title  string
	Artist string
	Album  string
	Genre  string
	Track  int
	Year   int
}

// ReadEmbeddedTags reads ID3, MP4, FLAC or Ogg metadata from src
func (l *Library) ReadEmbeddedTags(src string) (*EmbeddedTags, error) {
	f, err := l.reg.Fs().Open(src)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read tags: %w", err)
	}
	track, _ := m.Track()
	artist := m.AlbumArtist()
	if artist == "" {
		artist = m.Artist()
	}
	return &EmbeddedTags{
		Title:  m.Title(),
		Artist: artist,
		Album:  m.Album(),
		Genre:  m.Genre(),
		Track:  track,
		Year:   m.Year(),
	}, nil
}

// seedTags copies embedded metadata into item tags that are not set yet
func (l *Library) seedTags(itemID int64, src string) error {
	embedded, err := l.ReadEmbeddedTags(src)
	if err != nil {
		util.DebugLog("No embedded tags in %s: %v", src, err)
		return nil
	}

	existing, err := l.h.Tags(folders.ItemOwner(itemID))
	if err != nil {
		return err
	}

	var seeds []folders.Tag
	if embedded.Title != "" {
		seeds = append(seeds, folders.Tag{Name: TagTitle, Value: folders.StringValue(embedded.Title)})
	}
	if embedded.Track > 0 {
		seeds = append(seeds, folders.Tag{Name: TagTrack, Value: folders.IntValue(int64(embedded.Track))})
	}
	if embedded.Year > 0 {
		seeds = append(seeds, folders.Tag{Name: TagYear, Value: folders.IntValue(int64(embedded.Year))})
	}
	if embedded.Genre != "" {
		seeds = append(seeds, folders.Tag{Name: TagGenre, Value: folders.StringValue(embedded.Genre)})
	}

	for _, seed := range seeds {
		if _, ok := existing[seed.Name]; ok {
			continue
		}
		if err := l.h.SetTag(folders.ItemOwner(itemID), seed.Name, seed.Value); err != nil {
			return err
		}
	}
	return nil
}

// ImportMusicFile copies src into the collection as the music file of an
// item. Embedded title, track, year and genre seed item tags that are not
// set yet. The file lands at the item's canonical path.
func (l *Library) ImportMusicFile(ctx context.Context, itemID int64, src string) (int64, error) {
	typ, err := FileTypeFromPath(src)
	if err != nil {
		return 0, err
	}
	if _, ok, err := l.MusicFile(itemID); err != nil {
		return 0, err
	} else if ok {
		return 0, fmt.Errorf("item %d already has a music file: %w", itemID, util.ErrConflict)
	}

	var fileID int64
	err = l.db.Batch(func() error {
		if err := l.seedTags(itemID, src); err != nil {
			return err
		}

		p, err := l.musicPathFor(itemID, typ)
		if err != nil {
			return err
		}

		fileID, err = l.importFree(ctx, src, p)
		if err != nil {
			return err
		}

		err = l.db.Write(notify.Music, func(conn *store.Conn) error {
			_, err := conn.InsertRow("music_files", []string{"id", "internal_file_id", "file_type"},
				itemID, fileID, int64(typ))
			return err
		}, itemID)
		if err != nil {
			l.reg.Delete(fileID)
			return err
		}

		util.InfoLog("Imported %s as music file %d of item %d", src, fileID, itemID)
		return nil
	})
	return fileID, err
}

// DeleteMusicFile detaches and removes the music file of an item
func (l *Library) DeleteMusicFile(itemID int64) error {
	mf, ok, err := l.MusicFile(itemID)
	if err != nil || !ok {
		return err
	}
	err = l.db.Write(notify.Music, func(conn *store.Conn) error {
		return conn.DeleteRow("music_files", itemID)
	}, itemID)
	if err != nil {
		return err
	}
	return l.reg.Delete(mf.FileID)
}
