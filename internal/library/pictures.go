package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/franz/lappi/internal/notify"
	"github.com/franz/lappi/internal/store"
	"github.com/franz/lappi/internal/util"
)

var pictureExts = map[string]bool{
	"jpg":  true,
	"jpeg": true,
	"png":  true,
	"gif":  true,
	"webp": true,
	"bmp":  true,
}

// pictureExt returns the lowercase extension of an image path without dot
func pictureExt(path string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if !pictureExts[ext] {
		return "", fmt.Errorf("image %s: %w", path, util.ErrUnsupported)
	}
	return ext, nil
}

// Picture is an image stored in a folder's pictures directory
type Picture struct {
	ID        int64
	Extension string
	FolderID  int64
	FileID    int64
}

const pictureColumns = "id, extension, folder_id, internal_file_id"

func scanPicture(row interface{ Scan(...interface{}) error }) (Picture, error) {
	var (
		pic    Picture
		fileID sql.NullInt64
	)
	if err := row.Scan(&pic.ID, &pic.Extension, &pic.FolderID, &fileID); err != nil {
		return pic, err
	}
	pic.FileID = fileID.Int64
	return pic, nil
}

// Picture returns a picture. A missing picture is a storage error.
func (l *Library) Picture(id int64) (Picture, error) {
	var pic Picture
	err := l.db.Read(func(conn *store.Conn) error {
		var err error
		pic, err = scanPicture(conn.QueryRow("SELECT "+pictureColumns+" FROM picture_items WHERE id = ?", id))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("picture %d not found: %w", id, err)
		}
		return err
	})
	return pic, err
}

func (l *Library) queryPictures(query string, args ...interface{}) ([]Picture, error) {
	var result []Picture
	err := l.db.Read(func(conn *store.Conn) error {
		rows, err := conn.Query(query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			pic, err := scanPicture(rows)
			if err != nil {
				return err
			}
			result = append(result, pic)
		}
		return rows.Err()
	})
	return result, err
}

// PicturesInFolder lists the pictures of a folder
func (l *Library) PicturesInFolder(folderID int64) ([]Picture, error) {
	return l.queryPictures("SELECT "+pictureColumns+" FROM picture_items WHERE folder_id = ? ORDER BY id", folderID)
}

// AllPictures lists every picture ordered by id
func (l *Library) AllPictures() ([]Picture, error) {
	return l.queryPictures("SELECT " + pictureColumns + " FROM picture_items ORDER BY id")
}

// ImportPicture copies an image into a folder's pictures directory. The
// picture id is part of its file name, so the row is created first.
func (l *Library) ImportPicture(ctx context.Context, folderID int64, src string) (int64, error) {
	ext, err := pictureExt(src)
	if err != nil {
		return 0, err
	}
	if _, err := l.h.Get(folderID); err != nil {
		return 0, err
	}

	id, err := l.db.Store().InsertRow("picture_items", []string{"extension", "folder_id"}, ext, folderID)
	if err != nil {
		return 0, err
	}

	p, err := l.picturePathFor(id, folderID, ext)
	if err == nil {
		var fileID int64
		fileID, _, err = l.reg.Import(ctx, src, p)
		if err == nil {
			err = l.db.Store().SetField("picture_items", id, "internal_file_id", fileID)
			if err != nil {
				l.reg.Delete(fileID)
			}
		}
	}
	if err != nil {
		l.db.Store().DeleteRow("picture_items", id)
		return 0, err
	}

	l.db.Mark(notify.Folders)
	return id, nil
}

// DeletePicture removes a picture and its file
func (l *Library) DeletePicture(id int64) error {
	pic, err := l.Picture(id)
	if err != nil {
		return err
	}
	err = l.db.Write(notify.Folders, func(conn *store.Conn) error {
		return conn.DeleteRow("picture_items", id)
	})
	if err != nil || pic.FileID == 0 {
		return err
	}
	return l.reg.Delete(pic.FileID)
}
