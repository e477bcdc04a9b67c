package catalog

import (
	"regexp"
)

// QueryKind is the shape of a catalog query.
type QueryKind int

const (
	QueryText QueryKind = iota // Free-text search
	QueryTrack
	QueryAlbum
	QueryPlaylist
	QueryArtist
)

// String returns the string representation of the query kind.
func (k QueryKind) String() string {
	switch k {
	case QueryText:
		return "text"
	case QueryTrack:
		return "track"
	case QueryAlbum:
		return "album"
	case QueryPlaylist:
		return "playlist"
	case QueryArtist:
		return "artist"
	default:
		return "unknown"
	}
}

// Matches open.spotify.com URLs (with an optional intl-xx segment) and
// spotify: URIs.
var catalogRef = regexp.MustCompile(`^(?:https?://open\.spotify\.com/(?:intl-[a-zA-Z-]+/)?|spotify:)(track|album|playlist|artist)[/:]([A-Za-z0-9]+)`)

// ParseQuery classifies a query and extracts the catalog id for URLs and URIs.
func ParseQuery(query string) (QueryKind, string) {
	m := catalogRef.FindStringSubmatch(query)
	if m == nil {
		return QueryText, query
	}
	switch m[1] {
	case "track":
		return QueryTrack, m[2]
	case "album":
		return QueryAlbum, m[2]
	case "playlist":
		return QueryPlaylist, m[2]
	default:
		return QueryArtist, m[2]
	}
}

// IsCatalogRef reports whether query is a catalog URL or URI.
func IsCatalogRef(query string) bool {
	return catalogRef.MatchString(query)
}
