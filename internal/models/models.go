// Package models defines the core data structures used throughout the application.
package models

// Song represents a single catalog entry.
//
// ID and PlayCount are owned by the server: the ID is assigned at creation and
// PlayCount only ever grows by one per play.
type Song struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	Genre     string `json:"genre"`
	PlayCount int64  `json:"play_count"`
}

// Clone returns a copy of the song.
func (s *Song) Clone() *Song {
	c := *s
	return &c
}

// GetID returns the song ID.
func (s *Song) GetID() int64 {
	return s.ID
}

// Field returns the value of a searchable text field by its JSON name.
func (s *Song) Field(name string) (string, bool) {
	switch name {
	case FieldTitle:
		return s.Title, true
	case FieldArtist:
		return s.Artist, true
	case FieldGenre:
		return s.Genre, true
	default:
		return "", false
	}
}

// Searchable text fields.
const (
	FieldTitle  = "title"
	FieldArtist = "artist"
	FieldGenre  = "genre"
)

// SearchableFields lists the fields accepted as search filters, in a stable order.
var SearchableFields = []string{FieldTitle, FieldArtist, FieldGenre}
