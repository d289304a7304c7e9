package library

import (
	"context"

	"github.com/franz/lappi/internal/util"
)

// SetFolderCover imports an image as the cover of a folder, replacing the
// previous cover. The new file is in place before the old one is deleted,
// so a failed import leaves the previous cover untouched.
func (l *Library) SetFolderCover(ctx context.Context, folderID int64, src string) (int64, error) {
	ext, err := pictureExt(src)
	if err != nil {
		return 0, err
	}
	old, hadOld, err := l.h.Cover(folderID)
	if err != nil {
		return 0, err
	}

	p, err := l.CoverPath(folderID, ext)
	if err != nil {
		return 0, err
	}
	fileID, err := l.importFree(ctx, src, p)
	if err != nil {
		return 0, err
	}
	if err := l.h.SetCover(folderID, fileID); err != nil {
		l.reg.Delete(fileID)
		return 0, err
	}

	if hadOld {
		if err := l.reg.Delete(old); err != nil {
			util.WarnLog("Failed to delete previous cover of folder %d: %v", folderID, err)
			return fileID, nil
		}
	}
	// an old cover with the same extension held p until now
	if cur, err := l.reg.Resolve(fileID); err == nil && cur != p {
		if err := l.reg.RewritePath(fileID, p); err != nil {
			util.WarnLog("Cover of folder %d stays at %s: %v", folderID, cur, err)
		}
	}
	return fileID, nil
}

// ClearFolderCover detaches and deletes the cover of a folder, if any
func (l *Library) ClearFolderCover(folderID int64) error {
	old, ok, err := l.h.Cover(folderID)
	if err != nil || !ok {
		return err
	}
	if err := l.h.SetCover(folderID, 0); err != nil {
		return err
	}
	return l.reg.Delete(old)
}

// SaveFolderDescription stores the description text of a folder
func (l *Library) SaveFolderDescription(folderID int64, text string) (int64, error) {
	fileID, ok, err := l.h.DescriptionFile(folderID)
	if err != nil {
		return 0, err
	}
	if ok {
		return fileID, l.reg.WriteFile(fileID, []byte(text))
	}

	p, err := l.DescriptionPath(folderID)
	if err != nil {
		return 0, err
	}
	fileID, err = l.registerFree(p)
	if err != nil {
		return 0, err
	}
	if err := l.reg.WriteFile(fileID, []byte(text)); err != nil {
		l.reg.Delete(fileID)
		return 0, err
	}
	if err := l.h.SetDescriptionFile(folderID, fileID); err != nil {
		l.reg.Delete(fileID)
		return 0, err
	}
	return fileID, nil
}

// FolderDescription reads the description text of a folder.
// ok is false when the folder has none.
func (l *Library) FolderDescription(folderID int64) (text string, ok bool, err error) {
	fileID, ok, err := l.h.DescriptionFile(folderID)
	if err != nil || !ok {
		return "", false, err
	}
	data, err := l.reg.ReadFile(fileID)
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}
