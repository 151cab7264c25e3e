package router

import (
	"github.com/gin-gonic/gin"

	"github.com/tunereel/tunereel-be/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	h := handler.New(deps)

	// Health check endpoint, includes a database round trip
	r.GET("/health", h.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		singers := v1.Group("/singers")
		{
			singers.POST("", h.CreateSinger)
			singers.GET("", h.ListSingers)
			singers.GET("/:singer_id", h.GetSinger)
			singers.PUT("/:singer_id", h.UpdateSinger)
			singers.DELETE("/:singer_id", h.DeleteSinger)
			singers.GET("/:singer_id/albums", h.ListSingerAlbums)
		}

		albums := v1.Group("/albums")
		{
			albums.POST("", h.CreateAlbum)
			albums.GET("/:album_id", h.GetAlbum)
			albums.DELETE("/:album_id", h.DeleteAlbum)
		}

		songs := v1.Group("/songs")
		{
			songs.POST("", h.CreateSong)
			songs.GET("", h.ListSongs)
			songs.GET("/:song_id", h.GetSong)
			songs.PUT("/:song_id", h.UpdateSong)
			songs.DELETE("/:song_id", h.DeleteSong)

			// POST /api/v1/songs/:song_id/music-video - Kick off generation
			songs.POST("/:song_id/music-video", h.CreateMusicVideo)
		}

		playlists := v1.Group("/playlists")
		{
			playlists.POST("", h.CreatePlaylist)
			playlists.GET("/:playlist_id", h.GetPlaylist)
			playlists.DELETE("/:playlist_id", h.DeletePlaylist)
			playlists.POST("/:playlist_id/songs", h.AddPlaylistSong)
			playlists.DELETE("/:playlist_id/songs/:song_id", h.RemovePlaylistSong)
		}

		videos := v1.Group("/music-videos")
		{
			// GET /api/v1/music-videos - List jobs with filtering and pagination
			videos.GET("", h.ListMusicVideos)

			// GET /api/v1/music-videos/:job_id - Get job details with chunks
			videos.GET("/:job_id", h.GetMusicVideo)

			// GET /api/v1/music-videos/:job_id/manifest - Playback manifest
			videos.GET("/:job_id/manifest", h.GetMusicVideoManifest)
		}
	}

	return r
}
