package dto

// Singer

type CreateSingerRequest struct {
	Name string `json:"name" binding:"required"`
	Bio  string `json:"bio"`
}

type UpdateSingerRequest struct {
	Name string `json:"name"`
	Bio  string `json:"bio"`
}

type SingerDTO struct {
	SingerID  string `json:"singer_id"`
	Name      string `json:"name"`
	Bio       string `json:"bio,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// Album

type CreateAlbumRequest struct {
	SingerID    string `json:"singer_id" binding:"required"`
	Title       string `json:"title" binding:"required"`
	ReleaseYear int    `json:"release_year"`
	CoverURL    string `json:"cover_url"`
}

type AlbumDTO struct {
	AlbumID     string `json:"album_id"`
	SingerID    string `json:"singer_id"`
	Title       string `json:"title"`
	ReleaseYear int    `json:"release_year,omitempty"`
	CoverURL    string `json:"cover_url,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// Song

type CreateSongRequest struct {
	SingerID string `json:"singer_id" binding:"required"`
	AlbumID  string `json:"album_id"`
	Title    string `json:"title" binding:"required"`
	AudioURL string `json:"audio_url" binding:"required,url"`
}

type UpdateSongRequest struct {
	Title    string `json:"title"`
	AlbumID  string `json:"album_id"`
	AudioURL string `json:"audio_url"`
}

type ListSongsRequest struct {
	SingerID string `form:"singer_id"`
	AlbumID  string `form:"album_id"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type SongDTO struct {
	SongID     string `json:"song_id"`
	SingerID   string `json:"singer_id"`
	AlbumID    string `json:"album_id,omitempty"`
	Title      string `json:"title"`
	AudioURL   string `json:"audio_url"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

type ListSongsResponse struct {
	Songs      []SongDTO `json:"songs"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

// Playlist

type CreatePlaylistRequest struct {
	Name    string `json:"name" binding:"required"`
	OwnerID string `json:"owner_id"`
}

type AddPlaylistSongRequest struct {
	SongID string `json:"song_id" binding:"required"`
}

type PlaylistDTO struct {
	PlaylistID string    `json:"playlist_id"`
	Name       string    `json:"name"`
	OwnerID    string    `json:"owner_id,omitempty"`
	Songs      []SongDTO `json:"songs,omitempty"`
	CreatedAt  string    `json:"created_at"`
	UpdatedAt  string    `json:"updated_at"`
}
