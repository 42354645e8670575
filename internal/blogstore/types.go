package blogstore

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates no post exists for the requested id.
	ErrNotFound = errors.New("blogstore: post not found")
	// ErrVersionNotFound indicates the post exists but not at that version.
	ErrVersionNotFound = errors.New("blogstore: version not found")
)

// Post is a stored blog post at a specific version. The id is assigned once
// on creation and never changes; the version only increases. Content at a
// confirmed version is immutable: revisions append new versions instead of
// rewriting history.
type Post struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Author    string    `json:"author"`
	Tags      []string  `json:"tags,omitempty"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Summary is the listing/search projection of a post without its content.
type Summary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	Tags      []string  `json:"tags,omitempty"`
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

type metadata struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	Tags      []string  `json:"tags,omitempty"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (m metadata) summary() Summary {
	return Summary{
		ID:        m.ID,
		Title:     m.Title,
		Author:    m.Author,
		Tags:      append([]string{}, m.Tags...),
		Version:   m.Version,
		UpdatedAt: m.UpdatedAt,
	}
}
