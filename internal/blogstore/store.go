// Package blogstore is a file-backed blog post store with immutable version
// history. Each post lives in its own directory: numbered markdown files with
// a YAML front matter header per version, plus a meta.json describing the
// latest confirmed version.
package blogstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store manages post IO rooted at a posts directory.
type Store struct {
	root  string
	now   func() time.Time
	newID func() string
}

// StoreOption customizes a Store during construction.
type StoreOption func(*Store)

// WithClock overrides the clock used for post timestamps (tests).
func WithClock(clock func() time.Time) StoreOption {
	return func(s *Store) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithIDSource overrides post id generation (tests).
func WithIDSource(source func() string) StoreOption {
	return func(s *Store) {
		if source != nil {
			s.newID = source
		}
	}
}

// NewStore builds a store rooted at dir.
func NewStore(dir string, opts ...StoreOption) *Store {
	store := &Store{
		root:  dir,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Create persists a new post at version 1 and assigns its id.
func (s *Store) Create(title, content, author string, tags []string) (Post, error) {
	if strings.TrimSpace(title) == "" {
		return Post{}, fmt.Errorf("blogstore: title is required")
	}
	now := s.now().UTC()
	post := Post{
		ID:        s.newID(),
		Title:     title,
		Content:   content,
		Author:    author,
		Tags:      normalizeTags(tags),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := os.MkdirAll(s.postDir(post.ID), 0o755); err != nil {
		return Post{}, fmt.Errorf("blogstore: create post dir: %w", err)
	}
	if err := s.writeVersionFile(post); err != nil {
		return Post{}, err
	}
	if err := s.writeMeta(post); err != nil {
		return Post{}, err
	}
	return post, nil
}

// Get returns the post at its latest confirmed version.
func (s *Store) Get(id string) (Post, error) {
	meta, err := s.readMeta(id)
	if err != nil {
		return Post{}, err
	}
	return s.readVersion(meta, meta.Version)
}

// GetVersion returns the post content as it was at an earlier version.
// Confirmed versions are immutable, so the result never changes.
func (s *Store) GetVersion(id string, version int) (Post, error) {
	meta, err := s.readMeta(id)
	if err != nil {
		return Post{}, err
	}
	if version < 1 || version > meta.Version {
		return Post{}, ErrVersionNotFound
	}
	return s.readVersion(meta, version)
}

// AppendVersion writes the next version of a post and bumps the confirmed
// version. A version file left behind by an interrupted append (one the
// metadata never confirmed) is replaced rather than treated as history.
func (s *Store) AppendVersion(id, title, content string) (Post, error) {
	meta, err := s.readMeta(id)
	if err != nil {
		return Post{}, err
	}
	next := meta.Version + 1
	post := Post{
		ID:        meta.ID,
		Title:     title,
		Content:   content,
		Author:    meta.Author,
		Tags:      append([]string{}, meta.Tags...),
		Version:   next,
		CreatedAt: meta.CreatedAt,
		UpdatedAt: s.now().UTC(),
	}
	if err := s.writeVersionFile(post); err != nil {
		return Post{}, err
	}
	if err := s.writeMeta(post); err != nil {
		return Post{}, err
	}
	return post, nil
}

// List returns summaries of every post, most recently updated first.
func (s *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("blogstore: list posts: %w", err)
	}
	var summaries []Summary
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.readMeta(entry.Name())
		if err != nil {
			continue
		}
		summaries = append(summaries, meta.summary())
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

// Search returns summaries of posts whose title, latest content, or tags
// contain the query, case-insensitively.
func (s *Store) Search(query string) ([]Summary, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, nil
	}
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	var matches []Summary
	for _, summary := range all {
		if matchesSummary(summary, query) {
			matches = append(matches, summary)
			continue
		}
		post, err := s.Get(summary.ID)
		if err != nil {
			continue
		}
		if strings.Contains(strings.ToLower(post.Content), query) {
			matches = append(matches, summary)
		}
	}
	return matches, nil
}

// Delete removes a post and its whole version history.
func (s *Store) Delete(id string) error {
	dir := s.postDir(id)
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("blogstore: stat %s: %w", id, err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("blogstore: delete %s: %w", id, err)
	}
	return nil
}

func (s *Store) postDir(id string) string {
	return filepath.Join(s.root, id)
}

func (s *Store) versionPath(id string, version int) string {
	return filepath.Join(s.postDir(id), fmt.Sprintf("v%d.md", version))
}

func (s *Store) metaPath(id string) string {
	return filepath.Join(s.postDir(id), "meta.json")
}

func (s *Store) readMeta(id string) (metadata, error) {
	data, err := os.ReadFile(s.metaPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return metadata{}, ErrNotFound
		}
		return metadata{}, fmt.Errorf("blogstore: read metadata for %s: %w", id, err)
	}
	var meta metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return metadata{}, fmt.Errorf("blogstore: parse metadata for %s: %w", id, err)
	}
	return meta, nil
}

func (s *Store) readVersion(meta metadata, version int) (Post, error) {
	data, err := os.ReadFile(s.versionPath(meta.ID, version))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Post{}, ErrVersionNotFound
		}
		return Post{}, fmt.Errorf("blogstore: read %s v%d: %w", meta.ID, version, err)
	}
	post, err := parseFrontMatter(data)
	if err != nil {
		return Post{}, err
	}
	post.UpdatedAt = meta.UpdatedAt
	return post, nil
}

func (s *Store) writeVersionFile(post Post) error {
	content, err := writeFrontMatter(post)
	if err != nil {
		return err
	}
	return atomicWrite(s.versionPath(post.ID, post.Version), content)
}

func (s *Store) writeMeta(post Post) error {
	meta := metadata{
		ID:        post.ID,
		Title:     post.Title,
		Author:    post.Author,
		Tags:      append([]string{}, post.Tags...),
		Version:   post.Version,
		CreatedAt: post.CreatedAt,
		UpdatedAt: post.UpdatedAt,
	}
	encoded, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("blogstore: encode metadata: %w", err)
	}
	return atomicWrite(s.metaPath(post.ID), append(encoded, '\n'))
}

// atomicWrite stages content in a temp file and renames it into place so a
// crash never leaves a half-written file at the target path.
func atomicWrite(path string, content []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return fmt.Errorf("blogstore: stage %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("blogstore: replace %s: %w", path, err)
	}
	return nil
}

func matchesSummary(summary Summary, query string) bool {
	if strings.Contains(strings.ToLower(summary.Title), query) {
		return true
	}
	for _, tag := range summary.Tags {
		if strings.Contains(strings.ToLower(tag), query) {
			return true
		}
	}
	return false
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	var out []string
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tag)
	}
	return out
}
