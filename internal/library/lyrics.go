package library

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/franz/lappi/internal/notify"
	"github.com/franz/lappi/internal/store"
)

// Lyrics is the text of a music item in one language
type Lyrics struct {
	ID     int64
	ItemID int64
	Lang   string
	FileID int64 // 0 while no text was saved
}

func scanLyrics(row interface{ Scan(...interface{}) error }) (Lyrics, error) {
	var (
		ly     Lyrics
		fileID sql.NullInt64
	)
	if err := row.Scan(&ly.ID, &ly.ItemID, &ly.Lang, &fileID); err != nil {
		return ly, err
	}
	ly.FileID = fileID.Int64
	return ly, nil
}

const lyricsColumns = "id, music_item_id, lang_code, internal_file_id"

// Lyrics returns a lyrics entry. A missing entry is a storage error.
func (l *Library) Lyrics(id int64) (Lyrics, error) {
	var ly Lyrics
	err := l.db.Read(func(conn *store.Conn) error {
		var err error
		ly, err = scanLyrics(conn.QueryRow("SELECT "+lyricsColumns+" FROM lyrics_items WHERE id = ?", id))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("lyrics %d not found: %w", id, err)
		}
		return err
	})
	return ly, err
}

func (l *Library) queryLyrics(query string, args ...interface{}) ([]Lyrics, error) {
	var result []Lyrics
	err := l.db.Read(func(conn *store.Conn) error {
		rows, err := conn.Query(query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			ly, err := scanLyrics(rows)
			if err != nil {
				return err
			}
			result = append(result, ly)
		}
		return rows.Err()
	})
	return result, err
}

// LyricsForItem lists the lyrics of a music item ordered by language
func (l *Library) LyricsForItem(itemID int64) ([]Lyrics, error) {
	return l.queryLyrics("SELECT "+lyricsColumns+" FROM lyrics_items WHERE music_item_id = ? ORDER BY lang_code", itemID)
}

// AllLyrics lists every lyrics entry ordered by id
func (l *Library) AllLyrics() ([]Lyrics, error) {
	return l.queryLyrics("SELECT " + lyricsColumns + " FROM lyrics_items ORDER BY id")
}

func normalizeLang(lang string) (string, error) {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		return "", store.Errorf("lyrics", "empty language code")
	}
	return lang, nil
}

// SaveLyrics stores the text of a music item in a language, creating the
// entry and its file on first use.
func (l *Library) SaveLyrics(itemID int64, lang, text string) (int64, error) {
	lang, err := normalizeLang(lang)
	if err != nil {
		return 0, err
	}

	existing, err := l.LyricsForItem(itemID)
	if err != nil {
		return 0, err
	}
	for _, ly := range existing {
		if ly.Lang != lang {
			continue
		}
		if ly.FileID == 0 {
			fileID, err := l.registerLyricsFile(ly.ItemID, lang)
			if err != nil {
				return 0, err
			}
			if err := l.db.Store().SetField("lyrics_items", ly.ID, "internal_file_id", fileID); err != nil {
				l.reg.Delete(fileID)
				return 0, err
			}
			ly.FileID = fileID
		}
		if err := l.reg.WriteFile(ly.FileID, []byte(text)); err != nil {
			return 0, err
		}
		l.db.Mark(notify.Music, itemID)
		return ly.ID, nil
	}

	fileID, err := l.registerLyricsFile(itemID, lang)
	if err != nil {
		return 0, err
	}
	if err := l.reg.WriteFile(fileID, []byte(text)); err != nil {
		l.reg.Delete(fileID)
		return 0, err
	}

	var id int64
	err = l.db.Write(notify.Music, func(conn *store.Conn) error {
		var err error
		id, err = conn.InsertRow("lyrics_items", []string{"music_item_id", "lang_code", "internal_file_id"},
			itemID, lang, fileID)
		return err
	}, itemID)
	if err != nil {
		l.reg.Delete(fileID)
		return 0, err
	}
	return id, nil
}

func (l *Library) registerLyricsFile(itemID int64, lang string) (int64, error) {
	p, err := l.lyricsPathFor(itemID, lang)
	if err != nil {
		return 0, err
	}
	return l.registerFree(p)
}

// LyricsText reads the text of a music item in a language.
// ok is false when there are no lyrics in that language.
func (l *Library) LyricsText(itemID int64, lang string) (text string, ok bool, err error) {
	lang, err = normalizeLang(lang)
	if err != nil {
		return "", false, err
	}
	lyrics, err := l.LyricsForItem(itemID)
	if err != nil {
		return "", false, err
	}
	for _, ly := range lyrics {
		if ly.Lang != lang || ly.FileID == 0 {
			continue
		}
		data, err := l.reg.ReadFile(ly.FileID)
		if err != nil {
			return "", false, err
		}
		return string(data), true, nil
	}
	return "", false, nil
}

// DeleteLyrics removes a lyrics entry and its file
func (l *Library) DeleteLyrics(id int64) error {
	ly, err := l.Lyrics(id)
	if err != nil {
		return err
	}
	err = l.db.Write(notify.Music, func(conn *store.Conn) error {
		return conn.DeleteRow("lyrics_items", id)
	}, ly.ItemID)
	if err != nil || ly.FileID == 0 {
		return err
	}
	return l.reg.Delete(ly.FileID)
}
