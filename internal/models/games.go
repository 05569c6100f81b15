package models

// Game is a catalog entry as returned by the RAWG API.
type Game struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	BackgroundImage *string         `json:"background_image"`
	Released        *string         `json:"released"`
	Metacritic      *int            `json:"metacritic"`
	Platforms       []PlatformEntry `json:"platforms"`
	Genres          []Genre         `json:"genres"`
}

type PlatformEntry struct {
	Platform Platform `json:"platform"`
}

type Platform struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type Genre struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

func (g Game) HasPlatform(platformID int64) bool {
	for _, p := range g.Platforms {
		if p.Platform.ID == platformID {
			return true
		}
	}
	return false
}

func (g Game) HasGenre(genreID int64) bool {
	for _, genre := range g.Genres {
		if genre.ID == genreID {
			return true
		}
	}
	return false
}

// GameDetails is the single game view of the catalog.
type GameDetails struct {
	Game
	Description string  `json:"description"`
	Website     string  `json:"website,omitempty"`
	Playtime    int     `json:"playtime"`
	Rating      float64 `json:"rating"`
}

type SearchParams struct {
	Query     string
	Platforms []int64
	Page      int
	PageSize  int
}

type SearchResult struct {
	Results []Game `json:"results"`
	Count   int    `json:"count"`
}

type NamedPlatform struct {
	Name string `json:"name"`
	ID   int64  `json:"id"`
}

// Platforms is the fixed set of catalog platforms the app filters and charts by.
var Platforms = []NamedPlatform{
	{Name: "Steam", ID: 4},
	{Name: "PlayStation 5", ID: 187},
	{Name: "Nintendo Switch", ID: 7},
	{Name: "GameCube", ID: 105},
	{Name: "PlayStation 2", ID: 15},
	{Name: "PlayStation 3", ID: 16},
	{Name: "Wii", ID: 11},
	{Name: "Wii U", ID: 10},
}

func PlatformName(id int64) (string, bool) {
	for _, p := range Platforms {
		if p.ID == id {
			return p.Name, true
		}
	}
	return "", false
}
