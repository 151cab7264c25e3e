package model

import (
	"database/sql"
	"time"
)

// Singer is a catalog artist.
type Singer struct {
	SingerID  string         `db:"singer_id"`
	Name      string         `db:"name"`
	Bio       sql.NullString `db:"bio"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

// Album groups songs under a singer.
type Album struct {
	AlbumID     string         `db:"album_id"`
	SingerID    string         `db:"singer_id"`
	Title       string         `db:"title"`
	ReleaseYear sql.NullInt64  `db:"release_year"`
	CoverURL    sql.NullString `db:"cover_url"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

// Song is one catalog track with its source audio.
type Song struct {
	SongID     string         `db:"song_id"`
	SingerID   string         `db:"singer_id"`
	AlbumID    sql.NullString `db:"album_id"`
	Title      string         `db:"title"`
	AudioURL   string         `db:"audio_url"`
	DurationMs sql.NullInt64  `db:"duration_ms"`
	CreatedAt  time.Time      `db:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

// Playlist is a user-curated ordered set of songs.
type Playlist struct {
	PlaylistID string         `db:"playlist_id"`
	Name       string         `db:"name"`
	OwnerID    sql.NullString `db:"owner_id"`
	CreatedAt  time.Time      `db:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

// PlaylistSong is one playlist membership row.
type PlaylistSong struct {
	PlaylistID string    `db:"playlist_id"`
	SongID     string    `db:"song_id"`
	Position   int       `db:"position"`
	AddedAt    time.Time `db:"added_at"`
}
