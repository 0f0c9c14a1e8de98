// Package models defines the domain types shared by the idmlkit layers.
package models

import "time"

// FileMetadata is a lightweight representation returned by list operations.
type FileMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PackageSummary is the catalog view of one archive in the library.
type PackageSummary struct {
	Path        string    `json:"path"`
	Checksum    string    `json:"checksum"`
	Spreads     int       `json:"spreads"`
	Pages       int       `json:"pages"`
	Stories     int       `json:"stories"`
	ActiveLayer string    `json:"active_layer,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// StoryText is the plain text of one story, as indexed for search.
type StoryText struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Coordinates is a page rectangle in pasteboard space.
type Coordinates struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Width returns x2-x1.
func (c Coordinates) Width() float64 { return c.X2 - c.X1 }

// Height returns y2-y1.
func (c Coordinates) Height() float64 { return c.Y2 - c.Y1 }
