package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tunereel/tunereel-be/internal/api/model"
	"github.com/tunereel/tunereel-be/shared/postgresql"
)

var (
	ErrSingerNotFound   = errors.New("singer not found")
	ErrAlbumNotFound    = errors.New("album not found")
	ErrSongNotFound     = errors.New("song not found")
	ErrPlaylistNotFound = errors.New("playlist not found")
)

// Storage handles catalog database operations for the API service
type Storage struct {
	db *sqlx.DB
}

// NewStorage creates a new Storage instance
func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{
		db: pg.GetDB(),
	}
}

// Singers

func (s *Storage) CreateSinger(ctx context.Context, singer *model.Singer) error {
	query := `
		INSERT INTO singers (singer_id, name, bio, created_at, updated_at)
		VALUES (:singer_id, :name, :bio, :created_at, :updated_at)
	`
	if _, err := s.db.NamedExecContext(ctx, query, singer); err != nil {
		return fmt.Errorf("failed to create singer: %w", err)
	}
	return nil
}

func (s *Storage) GetSingerByID(ctx context.Context, singerID string) (*model.Singer, error) {
	var singer model.Singer
	query := `SELECT singer_id, name, bio, created_at, updated_at FROM singers WHERE singer_id = $1`
	if err := s.db.GetContext(ctx, &singer, query, singerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSingerNotFound
		}
		return nil, fmt.Errorf("failed to get singer: %w", err)
	}
	return &singer, nil
}

func (s *Storage) ListSingers(ctx context.Context, limit int) ([]model.Singer, error) {
	var singers []model.Singer
	query := `SELECT singer_id, name, bio, created_at, updated_at FROM singers ORDER BY name ASC LIMIT $1`
	if err := s.db.SelectContext(ctx, &singers, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list singers: %w", err)
	}
	return singers, nil
}

func (s *Storage) UpdateSinger(ctx context.Context, singer *model.Singer) error {
	query := `
		UPDATE singers SET name = :name, bio = :bio, updated_at = NOW()
		WHERE singer_id = :singer_id
	`
	result, err := s.db.NamedExecContext(ctx, query, singer)
	if err != nil {
		return fmt.Errorf("failed to update singer: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrSingerNotFound
	}
	return nil
}

func (s *Storage) DeleteSinger(ctx context.Context, singerID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM singers WHERE singer_id = $1`, singerID)
	if err != nil {
		return fmt.Errorf("failed to delete singer: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrSingerNotFound
	}
	return nil
}

// Albums

func (s *Storage) CreateAlbum(ctx context.Context, album *model.Album) error {
	query := `
		INSERT INTO albums (album_id, singer_id, title, release_year, cover_url, created_at, updated_at)
		VALUES (:album_id, :singer_id, :title, :release_year, :cover_url, :created_at, :updated_at)
	`
	if _, err := s.db.NamedExecContext(ctx, query, album); err != nil {
		return fmt.Errorf("failed to create album: %w", err)
	}
	return nil
}

func (s *Storage) GetAlbumByID(ctx context.Context, albumID string) (*model.Album, error) {
	var album model.Album
	query := `
		SELECT album_id, singer_id, title, release_year, cover_url, created_at, updated_at
		FROM albums WHERE album_id = $1
	`
	if err := s.db.GetContext(ctx, &album, query, albumID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAlbumNotFound
		}
		return nil, fmt.Errorf("failed to get album: %w", err)
	}
	return &album, nil
}

func (s *Storage) ListAlbumsBySinger(ctx context.Context, singerID string, limit int) ([]model.Album, error) {
	var albums []model.Album
	query := `
		SELECT album_id, singer_id, title, release_year, cover_url, created_at, updated_at
		FROM albums WHERE singer_id = $1 ORDER BY release_year DESC NULLS LAST, title ASC LIMIT $2
	`
	if err := s.db.SelectContext(ctx, &albums, query, singerID, limit); err != nil {
		return nil, fmt.Errorf("failed to list albums: %w", err)
	}
	return albums, nil
}

func (s *Storage) DeleteAlbum(ctx context.Context, albumID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM albums WHERE album_id = $1`, albumID)
	if err != nil {
		return fmt.Errorf("failed to delete album: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrAlbumNotFound
	}
	return nil
}

// Songs

func (s *Storage) CreateSong(ctx context.Context, song *model.Song) error {
	query := `
		INSERT INTO songs (song_id, singer_id, album_id, title, audio_url, duration_ms, created_at, updated_at)
		VALUES (:song_id, :singer_id, :album_id, :title, :audio_url, :duration_ms, :created_at, :updated_at)
	`
	if _, err := s.db.NamedExecContext(ctx, query, song); err != nil {
		return fmt.Errorf("failed to create song: %w", err)
	}
	return nil
}

func (s *Storage) GetSongByID(ctx context.Context, songID string) (*model.Song, error) {
	var song model.Song
	query := `
		SELECT song_id, singer_id, album_id, title, audio_url, duration_ms, created_at, updated_at
		FROM songs WHERE song_id = $1
	`
	if err := s.db.GetContext(ctx, &song, query, songID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSongNotFound
		}
		return nil, fmt.Errorf("failed to get song: %w", err)
	}
	return &song, nil
}

// SongFilter narrows and paginates song listings.
type SongFilter struct {
	SingerID string
	AlbumID  string
	PageSize int
	Cursor   *SongCursor
}

// SongCursor is a keyset cursor over (created_at, song_id).
type SongCursor struct {
	CreatedAt time.Time
	SongID    string
}

func (s *Storage) ListSongs(ctx context.Context, filter SongFilter) ([]model.Song, error) {
	query := `
		SELECT song_id, singer_id, album_id, title, audio_url, duration_ms, created_at, updated_at
		FROM songs
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if filter.SingerID != "" {
		query += fmt.Sprintf(" AND singer_id = $%d", argIdx)
		args = append(args, filter.SingerID)
		argIdx++
	}

	if filter.AlbumID != "" {
		query += fmt.Sprintf(" AND album_id = $%d", argIdx)
		args = append(args, filter.AlbumID)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, song_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.SongID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, song_id DESC"

	// Fetch one extra to determine if there are more results
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var songs []model.Song
	if err := s.db.SelectContext(ctx, &songs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list songs: %w", err)
	}

	return songs, nil
}

func (s *Storage) UpdateSong(ctx context.Context, song *model.Song) error {
	query := `
		UPDATE songs SET title = :title, album_id = :album_id, audio_url = :audio_url,
		       duration_ms = :duration_ms, updated_at = NOW()
		WHERE song_id = :song_id
	`
	result, err := s.db.NamedExecContext(ctx, query, song)
	if err != nil {
		return fmt.Errorf("failed to update song: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrSongNotFound
	}
	return nil
}

func (s *Storage) DeleteSong(ctx context.Context, songID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM songs WHERE song_id = $1`, songID)
	if err != nil {
		return fmt.Errorf("failed to delete song: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrSongNotFound
	}
	return nil
}

// Playlists

func (s *Storage) CreatePlaylist(ctx context.Context, playlist *model.Playlist) error {
	query := `
		INSERT INTO playlists (playlist_id, name, owner_id, created_at, updated_at)
		VALUES (:playlist_id, :name, :owner_id, :created_at, :updated_at)
	`
	if _, err := s.db.NamedExecContext(ctx, query, playlist); err != nil {
		return fmt.Errorf("failed to create playlist: %w", err)
	}
	return nil
}

func (s *Storage) GetPlaylistByID(ctx context.Context, playlistID string) (*model.Playlist, error) {
	var playlist model.Playlist
	query := `SELECT playlist_id, name, owner_id, created_at, updated_at FROM playlists WHERE playlist_id = $1`
	if err := s.db.GetContext(ctx, &playlist, query, playlistID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPlaylistNotFound
		}
		return nil, fmt.Errorf("failed to get playlist: %w", err)
	}
	return &playlist, nil
}

func (s *Storage) ListPlaylistSongs(ctx context.Context, playlistID string) ([]model.Song, error) {
	var songs []model.Song
	query := `
		SELECT s.song_id, s.singer_id, s.album_id, s.title, s.audio_url, s.duration_ms,
		       s.created_at, s.updated_at
		FROM playlist_songs ps
		JOIN songs s ON s.song_id = ps.song_id
		WHERE ps.playlist_id = $1
		ORDER BY ps.position ASC
	`
	if err := s.db.SelectContext(ctx, &songs, query, playlistID); err != nil {
		return nil, fmt.Errorf("failed to list playlist songs: %w", err)
	}
	return songs, nil
}

func (s *Storage) AddPlaylistSong(ctx context.Context, playlistID, songID string) error {
	query := `
		INSERT INTO playlist_songs (playlist_id, song_id, position, added_at)
		VALUES ($1, $2,
			COALESCE((SELECT MAX(position) + 1 FROM playlist_songs WHERE playlist_id = $1), 0),
			NOW())
		ON CONFLICT (playlist_id, song_id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, playlistID, songID); err != nil {
		return fmt.Errorf("failed to add song to playlist: %w", err)
	}
	return nil
}

func (s *Storage) RemovePlaylistSong(ctx context.Context, playlistID, songID string) error {
	query := `DELETE FROM playlist_songs WHERE playlist_id = $1 AND song_id = $2`
	if _, err := s.db.ExecContext(ctx, query, playlistID, songID); err != nil {
		return fmt.Errorf("failed to remove song from playlist: %w", err)
	}
	return nil
}

func (s *Storage) DeletePlaylist(ctx context.Context, playlistID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM playlists WHERE playlist_id = $1`, playlistID)
	if err != nil {
		return fmt.Errorf("failed to delete playlist: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrPlaylistNotFound
	}
	return nil
}
