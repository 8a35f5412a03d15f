package discogs

import "encoding/json"

type searchResponse struct {
	Pagination pagination     `json:"pagination"`
	Results    []searchResult `json:"results"`
}

type pagination struct {
	Page    int `json:"page"`
	Pages   int `json:"pages"`
	PerPage int `json:"per_page"`
	Items   int `json:"items"`
}

type searchResult struct {
	ID         int64           `json:"id"`
	Title      string          `json:"title"`
	Year       json.RawMessage `json:"year"`
	Style      []string        `json:"style"`
	CoverImage string          `json:"cover_image"`
	Thumb      string          `json:"thumb"`
	URI        string          `json:"uri"`
	Artists    []artist        `json:"artists"`
}

type artist struct {
	Name string `json:"name"`
}
