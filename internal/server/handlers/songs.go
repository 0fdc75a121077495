package handlers

import (
	"context"

	"github.com/maruel/songdb/internal/catalog"
	apierrors "github.com/maruel/songdb/internal/errors"
	"github.com/maruel/songdb/internal/models"
)

// SongHandler serves the /songs endpoints.
type SongHandler struct {
	svc *catalog.Service
}

// NewSongHandler returns a handler backed by svc.
func NewSongHandler(svc *catalog.Service) *SongHandler {
	return &SongHandler{svc: svc}
}

// CreateSongRequest is the body of POST /songs/new.
//
// ID and PlayCount are accepted so a song can be posted back as returned, but
// they are ignored.
type CreateSongRequest struct {
	ID        *int64  `json:"id,omitempty"`
	Title     *string `json:"title"`
	Artist    *string `json:"artist"`
	Genre     *string `json:"genre"`
	PlayCount *int64  `json:"play_count,omitempty"`
}

// Validate implements Validatable.
func (r *CreateSongRequest) Validate() error {
	switch {
	case r.Title == nil:
		return apierrors.MissingField(models.FieldTitle)
	case r.Artist == nil:
		return apierrors.MissingField(models.FieldArtist)
	case r.Genre == nil:
		return apierrors.MissingField(models.FieldGenre)
	}
	return nil
}

// CreateSong stores a new song and returns it with its assigned id.
func (h *SongHandler) CreateSong(ctx context.Context, req *CreateSongRequest) (*models.Song, error) {
	song, err := h.svc.Create(ctx, models.Song{
		Title:  *req.Title,
		Artist: *req.Artist,
		Genre:  *req.Genre,
	})
	if err != nil {
		return nil, toAPIError(err)
	}
	return song, nil
}

// SongIDRequest addresses a single song by path.
type SongIDRequest struct {
	ID int64 `path:"id"`
}

// Validate implements Validatable.
func (r *SongIDRequest) Validate() error {
	return nil
}

// GetSong returns one song.
func (h *SongHandler) GetSong(ctx context.Context, req *SongIDRequest) (*models.Song, error) {
	song, err := h.svc.Get(ctx, req.ID)
	if err != nil {
		return nil, toAPIError(err)
	}
	return song, nil
}

// PlaySong increments the play count of a song and returns it.
func (h *SongHandler) PlaySong(ctx context.Context, req *SongIDRequest) (*models.Song, error) {
	song, err := h.svc.Play(ctx, req.ID)
	if err != nil {
		return nil, toAPIError(err)
	}
	return song, nil
}

// SearchSongsRequest holds the optional substring filters of GET /songs/search.
// Other query parameters are ignored.
type SearchSongsRequest struct {
	Title  string `query:"title"`
	Artist string `query:"artist"`
	Genre  string `query:"genre"`
}

// Validate implements Validatable.
func (r *SearchSongsRequest) Validate() error {
	return nil
}

func (r *SearchSongsRequest) filter() catalog.Filter {
	f := catalog.Filter{}
	for field, v := range map[string]string{
		models.FieldTitle:  r.Title,
		models.FieldArtist: r.Artist,
		models.FieldGenre:  r.Genre,
	} {
		if v != "" {
			f[field] = v
		}
	}
	return f
}

// SearchSongsResponse is encoded as a JSON array.
type SearchSongsResponse []*models.Song

// SearchSongs returns the songs matching every given filter, case-insensitive.
func (h *SongHandler) SearchSongs(ctx context.Context, req *SearchSongsRequest) (*SearchSongsResponse, error) {
	songs, err := h.svc.Search(ctx, req.filter())
	if err != nil {
		return nil, toAPIError(err)
	}
	resp := SearchSongsResponse(songs)
	return &resp, nil
}
