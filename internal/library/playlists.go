package library

import (
	"strings"

	"github.com/franz/lappi/internal/notify"
	"github.com/franz/lappi/internal/store"
)

// Playlist is a named list of music items
type Playlist struct {
	ID   int64
	Name string
}

// CreatePlaylist returns the playlist with the given name, creating it if needed
func (l *Library) CreatePlaylist(name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, store.Errorf("create_playlist", "empty playlist name")
	}
	var (
		id      int64
		created bool
	)
	err := l.db.Store().Transaction(func(conn *store.Conn) error {
		var err error
		id, created, err = conn.FindOrInsert("playlists", "name", name)
		return err
	})
	if err != nil {
		return 0, err
	}
	if created {
		l.db.Mark(notify.Playlists)
	}
	return id, nil
}

// Playlists lists every playlist ordered by name
func (l *Library) Playlists() ([]Playlist, error) {
	var result []Playlist
	err := l.db.Read(func(conn *store.Conn) error {
		rows, err := conn.Query("SELECT id, name FROM playlists ORDER BY name")
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var p Playlist
			if err := rows.Scan(&p.ID, &p.Name); err != nil {
				return err
			}
			result = append(result, p)
		}
		return rows.Err()
	})
	return result, err
}

// AddToPlaylist appends a music item to a playlist
func (l *Library) AddToPlaylist(playlistID, itemID int64) error {
	if _, err := l.Item(itemID); err != nil {
		return err
	}
	return l.db.Write(notify.Playlists, func(conn *store.Conn) error {
		var name string
		if err := conn.GetField("playlists", playlistID, "name", &name); err != nil {
			return err
		}
		_, err := conn.InsertRow("playlist_items", []string{"playlist_id", "music_item_id"}, playlistID, itemID)
		return err
	}, itemID)
}

// PlaylistItems lists the music items of a playlist in insertion order
func (l *Library) PlaylistItems(playlistID int64) ([]int64, error) {
	var ids []int64
	err := l.db.Read(func(conn *store.Conn) error {
		rows, err := conn.Query("SELECT music_item_id FROM playlist_items WHERE playlist_id = ? ORDER BY id", playlistID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	return ids, err
}
