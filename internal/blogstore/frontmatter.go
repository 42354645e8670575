package blogstore

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// ErrMissingFrontMatter indicates a version file did not start with a YAML fence.
	ErrMissingFrontMatter = errors.New("blogstore: missing frontmatter")
	// ErrMalformedFrontMatter indicates the YAML block could not be parsed.
	ErrMalformedFrontMatter = errors.New("blogstore: malformed frontmatter")
)

const timeLayout = time.RFC3339

type postEnvelope struct {
	Post postFrontMatter `yaml:"post"`
}

type postFrontMatter struct {
	ID      string   `yaml:"id"`
	Title   string   `yaml:"title"`
	Author  string   `yaml:"author"`
	Version int      `yaml:"version"`
	Tags    []string `yaml:"tags,omitempty"`
	Created string   `yaml:"created"`
}

// writeFrontMatter renders a version file: YAML fences with the post header,
// then the markdown body.
func writeFrontMatter(post Post) ([]byte, error) {
	if post.ID == "" {
		return nil, fmt.Errorf("blogstore: post id is required")
	}
	envelope := postEnvelope{Post: postFrontMatter{
		ID:      post.ID,
		Title:   post.Title,
		Author:  post.Author,
		Version: post.Version,
		Tags:    append([]string{}, post.Tags...),
		Created: post.CreatedAt.UTC().Format(timeLayout),
	}}
	data, err := yaml.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("blogstore: encode frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(bytes.TrimRight(data, "\n"))
	buf.WriteString("\n---\n\n")
	buf.WriteString(post.Content)
	return buf.Bytes(), nil
}

// parseFrontMatter splits a version file into its post header and body.
func parseFrontMatter(content []byte) (Post, error) {
	normalized := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(normalized, []byte("---\n")) {
		return Post{}, ErrMissingFrontMatter
	}
	parts := bytes.SplitN(normalized[4:], []byte("\n---\n"), 2)
	if len(parts) < 2 {
		return Post{}, ErrMalformedFrontMatter
	}
	var envelope postEnvelope
	if err := yaml.Unmarshal(parts[0], &envelope); err != nil {
		return Post{}, fmt.Errorf("blogstore: parse frontmatter: %w", err)
	}
	header := envelope.Post
	if header.ID == "" || header.Version < 1 {
		return Post{}, ErrMalformedFrontMatter
	}
	created, err := time.Parse(timeLayout, header.Created)
	if err != nil {
		return Post{}, fmt.Errorf("blogstore: parse created timestamp: %w", err)
	}
	body := bytes.TrimPrefix(parts[1], []byte("\n"))
	return Post{
		ID:        header.ID,
		Title:     header.Title,
		Content:   string(body),
		Author:    header.Author,
		Tags:      append([]string{}, header.Tags...),
		Version:   header.Version,
		CreatedAt: created.UTC(),
	}, nil
}
