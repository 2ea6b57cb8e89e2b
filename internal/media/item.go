package media

import "strings"

// Item kinds as reported by the media server.
const (
	KindAlbum  = "MusicAlbum"
	KindArtist = "MusicArtist"
	KindTrack  = "Audio"
)

// Item is one catalog entry considered for enrichment.
type Item struct {
	ID             string
	Name           string
	Kind           string
	Overview       string
	ParentID       string
	OriginalTitle  string
	Artists        []string
	AlbumArtist    string
	Genres         []string
	ProductionYear int
}

// Title returns the display title, falling back to the original title.
func (i Item) Title() string {
	if name := strings.TrimSpace(i.Name); name != "" {
		return name
	}
	return strings.TrimSpace(i.OriginalTitle)
}

// Label identifies the item in logs and summaries.
func (i Item) Label() string {
	if title := i.Title(); title != "" {
		return title
	}
	return i.ID
}

// PrimaryArtist returns the album artist when set, otherwise the joined artists.
func (i Item) PrimaryArtist() string {
	if artist := strings.TrimSpace(i.AlbumArtist); artist != "" {
		return artist
	}
	return strings.Join(nonEmpty(i.Artists), ", ")
}

// GenreList returns the genres joined for display.
func (i Item) GenreList() string {
	return strings.Join(nonEmpty(i.Genres), ", ")
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
