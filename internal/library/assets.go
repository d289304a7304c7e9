package library

import (
	"fmt"
	"strings"

	"github.com/franz/lappi/internal/files"
)

// AssetKind is a category of stored asset
type AssetKind int

const (
	FolderCover AssetKind = iota
	FolderDescription
	MusicAsset
	LyricsAsset
	PictureAsset
)

var assetKindNames = map[AssetKind]string{
	FolderCover:       "cover",
	FolderDescription: "description",
	MusicAsset:        "music",
	LyricsAsset:       "lyrics",
	PictureAsset:      "picture",
}

func (k AssetKind) String() string {
	if name, ok := assetKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("AssetKind(%d)", int(k))
}

// AssetKinds lists every asset kind in the order they are walked
func AssetKinds() []AssetKind {
	return []AssetKind{FolderCover, FolderDescription, MusicAsset, LyricsAsset, PictureAsset}
}

// Asset is a stored file together with the path it should have
type Asset struct {
	Kind      AssetKind
	OwnerID   int64 // folder, music item, lyrics or picture id
	FileID    int64
	Canonical files.InternalPath
}

// WalkAssets calls fn for every stored asset of a kind with its canonical
// path computed from current metadata. Owners without a file are skipped.
// Returning an error from fn stops the walk.
func (l *Library) WalkAssets(kind AssetKind, fn func(Asset) error) error {
	switch kind {
	case FolderCover:
		return l.walkFolderFiles(kind, fn)
	case FolderDescription:
		return l.walkFolderFiles(kind, fn)
	case MusicAsset:
		return l.walkMusic(fn)
	case LyricsAsset:
		return l.walkLyrics(fn)
	case PictureAsset:
		return l.walkPictures(fn)
	}
	return fmt.Errorf("unknown asset kind %d", int(kind))
}

func (l *Library) walkFolderFiles(kind AssetKind, fn func(Asset) error) error {
	all, err := l.h.All()
	if err != nil {
		return err
	}
	for _, f := range all {
		a := Asset{Kind: kind, OwnerID: f.ID}
		if kind == FolderCover {
			if f.CoverFileID == 0 {
				continue
			}
			a.FileID = f.CoverFileID
			current, err := l.reg.Resolve(a.FileID)
			if err != nil {
				return err
			}
			a.Canonical, err = l.CoverPath(f.ID, strings.TrimPrefix(current.Ext(), "."))
			if err != nil {
				return err
			}
		} else {
			if f.DescriptionFileID == 0 {
				continue
			}
			a.FileID = f.DescriptionFileID
			a.Canonical, err = l.DescriptionPath(f.ID)
			if err != nil {
				return err
			}
		}
		if err := fn(a); err != nil {
			return err
		}
	}
	return nil
}

func (l *Library) walkMusic(fn func(Asset) error) error {
	ids, err := l.AllItems()
	if err != nil {
		return err
	}
	for _, id := range ids {
		mf, ok, err := l.MusicFile(id)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		p, err := l.musicPathFor(id, mf.Type)
		if err != nil {
			return err
		}
		if err := fn(Asset{Kind: MusicAsset, OwnerID: id, FileID: mf.FileID, Canonical: p}); err != nil {
			return err
		}
	}
	return nil
}

func (l *Library) walkLyrics(fn func(Asset) error) error {
	all, err := l.AllLyrics()
	if err != nil {
		return err
	}
	for _, ly := range all {
		if ly.FileID == 0 {
			continue
		}
		p, err := l.lyricsPathFor(ly.ItemID, ly.Lang)
		if err != nil {
			return err
		}
		if err := fn(Asset{Kind: LyricsAsset, OwnerID: ly.ID, FileID: ly.FileID, Canonical: p}); err != nil {
			return err
		}
	}
	return nil
}

func (l *Library) walkPictures(fn func(Asset) error) error {
	all, err := l.AllPictures()
	if err != nil {
		return err
	}
	for _, pic := range all {
		if pic.FileID == 0 {
			continue
		}
		p, err := l.picturePathFor(pic.ID, pic.FolderID, pic.Extension)
		if err != nil {
			return err
		}
		if err := fn(Asset{Kind: PictureAsset, OwnerID: pic.ID, FileID: pic.FileID, Canonical: p}); err != nil {
			return err
		}
	}
	return nil
}
