package store

// Collection tables, in dependency order. Export and import walk this list.
var collectionTables = []string{
	"folders",
	"internal_files",
	"music_items",
	"music_files",
	"lyrics_items",
	"picture_items",
	"tags",
	"playlists",
	"playlist_items",
}

// Schema v1 - Initial database schema.
// The root folder (id 0) is implicit and never stored as a row.
const schemaV1 = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS folders (
  id INTEGER NOT NULL PRIMARY KEY,
  parent_id INTEGER NOT NULL DEFAULT 0,
  name TEXT NOT NULL,
  folder_type INTEGER NOT NULL DEFAULT 0,
  cover_file_id INTEGER,
  description_file_id INTEGER
);

-- Logical path of every stored asset, relative to the storage root
CREATE TABLE IF NOT EXISTS internal_files (
  id INTEGER NOT NULL PRIMARY KEY,
  internal_path TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS music_items (
  id INTEGER NOT NULL PRIMARY KEY,
  name TEXT NOT NULL,
  folder_id INTEGER NOT NULL DEFAULT 0
);

-- At most one source file per music item
CREATE TABLE IF NOT EXISTS music_files (
  id INTEGER NOT NULL PRIMARY KEY REFERENCES music_items(id) ON DELETE CASCADE,
  internal_file_id INTEGER NOT NULL REFERENCES internal_files(id),
  file_type INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS lyrics_items (
  id INTEGER NOT NULL PRIMARY KEY,
  music_item_id INTEGER NOT NULL REFERENCES music_items(id) ON DELETE CASCADE,
  lang_code TEXT NOT NULL,
  internal_file_id INTEGER REFERENCES internal_files(id)
);

CREATE TABLE IF NOT EXISTS picture_items (
  id INTEGER NOT NULL PRIMARY KEY,
  extension TEXT NOT NULL,
  folder_id INTEGER NOT NULL DEFAULT 0,
  internal_file_id INTEGER REFERENCES internal_files(id)
);

-- A tag belongs to exactly one owner: a music item or a folder
CREATE TABLE IF NOT EXISTS tags (
  id INTEGER NOT NULL PRIMARY KEY,
  music_item_id INTEGER REFERENCES music_items(id) ON DELETE CASCADE,
  folder_id INTEGER,
  tag_name TEXT NOT NULL,
  value_type INTEGER NOT NULL DEFAULT 0,
  string_value TEXT,
  int_value INTEGER
);

CREATE TABLE IF NOT EXISTS playlists (
  id INTEGER NOT NULL PRIMARY KEY,
  name TEXT NOT NULL UNIQUE,
  cover_file_id INTEGER
);

CREATE TABLE IF NOT EXISTS playlist_items (
  id INTEGER NOT NULL PRIMARY KEY,
  playlist_id INTEGER NOT NULL REFERENCES playlists(id) ON DELETE CASCADE,
  music_item_id INTEGER
);
`

// Schema v2 - Lookup indexes and uniqueness guarantees
const schemaV2 = `
CREATE UNIQUE INDEX IF NOT EXISTS idx_folders_parent_name ON folders(parent_id, name);
CREATE INDEX IF NOT EXISTS idx_music_items_folder ON music_items(folder_id);
CREATE INDEX IF NOT EXISTS idx_lyrics_items_music ON lyrics_items(music_item_id);
CREATE INDEX IF NOT EXISTS idx_picture_items_folder ON picture_items(folder_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_tags_item_name ON tags(music_item_id, tag_name) WHERE music_item_id IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_tags_folder_name ON tags(folder_id, tag_name) WHERE folder_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_playlist_items_playlist ON playlist_items(playlist_id);
`
