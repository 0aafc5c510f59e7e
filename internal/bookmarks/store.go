// Package bookmarks implements the persistent bookmarked-policy store with
// typed annotations and JSON export/import.
package bookmarks

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pacifymap/incident-map-service/internal/domain"
	"github.com/pacifymap/incident-map-service/internal/observability"
)

// Persisted-state layout: two fixed keys, each rewritten whole on every
// mutation. The keys are stable across sessions.
const (
	keyBookmarks   = "bookmarked_policies"
	keyAnnotations = "policy_annotations"
)

// ExportVersion tags the export document format.
const ExportVersion = "1.0.0"

// AnnotationType classifies a note attached to a bookmark.
type AnnotationType string

const (
	AnnotationNote     AnnotationType = "note"
	AnnotationQuestion AnnotationType = "question"
	AnnotationInsight  AnnotationType = "insight"
)

// ValidAnnotationType reports whether t is one of the three known types.
func ValidAnnotationType(t AnnotationType) bool {
	switch t {
	case AnnotationNote, AnnotationQuestion, AnnotationInsight:
		return true
	}
	return false
}

// Annotation is one user note on a bookmarked policy.
type Annotation struct {
	ID         string         `json:"id"`
	Type       AnnotationType `json:"type"`
	Content    string         `json:"content"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  *time.Time     `json:"updated_at,omitempty"`
	AIResponse string         `json:"ai_response,omitempty"`
}

// Bookmark is a bookmarked policy with its annotations. The policy fields
// are embedded so the export document carries them inline.
type Bookmark struct {
	domain.Policy
	ID           string       `json:"id"`
	BookmarkedAt time.Time    `json:"bookmarked_at"`
	Annotations  []Annotation `json:"annotations"`
}

// storedBookmark is the bookmarked_policies value; annotations live under
// their own key, mirroring the persisted two-key layout.
type storedBookmark struct {
	domain.Policy
	ID           string    `json:"id"`
	BookmarkedAt time.Time `json:"bookmarked_at"`
}

// Store is the bookmark store. All mutations are read-modify-write over
// the whole persisted value; the store assumes at most thousands of
// entries.
type Store struct {
	mu      sync.Mutex
	kv      KV
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
	seq     uint64
}

// NewStore creates a Store over a KV backend.
func NewStore(kv KV, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Store {
	return &Store{kv: kv, clock: clock, logger: logger, metrics: metrics}
}

// Bookmark adds a policy to the store. At most one bookmark exists per
// law_id; a second call returns ErrAlreadyBookmarked.
func (s *Store) Bookmark(p domain.Policy) (Bookmark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.readBookmarks()
	if err != nil {
		return Bookmark{}, s.countOp("bookmark", err)
	}
	for _, b := range list {
		if b.LawID == p.LawID {
			return Bookmark{}, s.countOp("bookmark", domain.ErrAlreadyBookmarked)
		}
	}

	sb := storedBookmark{
		Policy:       p,
		ID:           s.newID("bm", p.LawID),
		BookmarkedAt: s.clock.Now().UTC(),
	}
	list = append(list, sb)
	if err := s.writeBookmarks(list); err != nil {
		return Bookmark{}, s.countOp("bookmark", err)
	}

	s.logger.Info("policy bookmarked", "law_id", p.LawID)
	_ = s.countOp("bookmark", nil)
	return Bookmark{Policy: sb.Policy, ID: sb.ID, BookmarkedAt: sb.BookmarkedAt, Annotations: []Annotation{}}, nil
}

// Unbookmark removes a bookmark and purges all its annotations.
func (s *Store) Unbookmark(lawID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.readBookmarks()
	if err != nil {
		return s.countOp("unbookmark", err)
	}

	kept := list[:0]
	found := false
	for _, b := range list {
		if b.LawID == lawID {
			found = true
			continue
		}
		kept = append(kept, b)
	}
	if !found {
		return s.countOp("unbookmark", domain.ErrNotBookmarked)
	}
	if err := s.writeBookmarks(kept); err != nil {
		return s.countOp("unbookmark", err)
	}

	anns, err := s.readAnnotations()
	if err != nil {
		return s.countOp("unbookmark", err)
	}
	delete(anns, lawID)
	if err := s.writeAnnotations(anns); err != nil {
		return s.countOp("unbookmark", err)
	}

	s.logger.Info("policy unbookmarked", "law_id", lawID)
	return s.countOp("unbookmark", nil)
}

// List returns all bookmarks in insertion order with annotations attached.
func (s *Store) List() ([]Bookmark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked()
}

func (s *Store) listLocked() ([]Bookmark, error) {
	list, err := s.readBookmarks()
	if err != nil {
		return nil, err
	}
	anns, err := s.readAnnotations()
	if err != nil {
		return nil, err
	}

	out := make([]Bookmark, 0, len(list))
	for _, sb := range list {
		a := anns[sb.LawID]
		if a == nil {
			a = []Annotation{}
		}
		out = append(out, Bookmark{Policy: sb.Policy, ID: sb.ID, BookmarkedAt: sb.BookmarkedAt, Annotations: a})
	}
	return out, nil
}

// IsBookmarked reports whether a law_id is bookmarked.
func (s *Store) IsBookmarked(lawID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.readBookmarks()
	if err != nil {
		return false, err
	}
	for _, b := range list {
		if b.LawID == lawID {
			return true, nil
		}
	}
	return false, nil
}

// AnnotationInput is the caller-supplied part of a new annotation.
type AnnotationInput struct {
	Type       AnnotationType `json:"type"`
	Content    string         `json:"content"`
	AIResponse string         `json:"ai_response,omitempty"`
}

// AddAnnotation appends an annotation to a bookmarked policy.
func (s *Store) AddAnnotation(lawID string, in AnnotationInput) (Annotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !ValidAnnotationType(in.Type) {
		return Annotation{}, s.countOp("annotate", fmt.Errorf("unknown annotation type %q: %w", in.Type, domain.ErrInvalidFormat))
	}
	bookmarked, err := s.isBookmarkedLocked(lawID)
	if err != nil {
		return Annotation{}, s.countOp("annotate", err)
	}
	if !bookmarked {
		return Annotation{}, s.countOp("annotate", domain.ErrNotBookmarked)
	}

	anns, err := s.readAnnotations()
	if err != nil {
		return Annotation{}, s.countOp("annotate", err)
	}

	ann := Annotation{
		ID:         s.newID("ann", lawID),
		Type:       in.Type,
		Content:    in.Content,
		CreatedAt:  s.clock.Now().UTC(),
		AIResponse: in.AIResponse,
	}
	anns[lawID] = append(anns[lawID], ann)
	if err := s.writeAnnotations(anns); err != nil {
		return Annotation{}, s.countOp("annotate", err)
	}
	return ann, s.countOp("annotate", nil)
}

// UpdateAnnotation replaces an annotation's content and stamps updated_at.
func (s *Store) UpdateAnnotation(lawID, annotationID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	anns, err := s.readAnnotations()
	if err != nil {
		return s.countOp("annotate", err)
	}
	list, ok := anns[lawID]
	if !ok {
		return s.countOp("annotate", domain.ErrNotBookmarked)
	}
	for i := range list {
		if list[i].ID == annotationID {
			now := s.clock.Now().UTC()
			list[i].Content = content
			list[i].UpdatedAt = &now
			return s.countOp("annotate", s.writeAnnotations(anns))
		}
	}
	return s.countOp("annotate", fmt.Errorf("annotation %s: %w", annotationID, domain.ErrNotBookmarked))
}

// RemoveAnnotation deletes one annotation from a bookmark.
func (s *Store) RemoveAnnotation(lawID, annotationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	anns, err := s.readAnnotations()
	if err != nil {
		return s.countOp("annotate", err)
	}
	list, ok := anns[lawID]
	if !ok {
		return s.countOp("annotate", domain.ErrNotBookmarked)
	}
	kept := list[:0]
	for _, a := range list {
		if a.ID != annotationID {
			kept = append(kept, a)
		}
	}
	anns[lawID] = kept
	return s.countOp("annotate", s.writeAnnotations(anns))
}

// exportDoc is the versioned export envelope.
type exportDoc struct {
	Version    string     `json:"version"`
	ExportedAt time.Time  `json:"exported_at"`
	Bookmarks  []Bookmark `json:"bookmarks"`
}

// Export writes the full bookmark list as a versioned JSON document.
func (s *Store) Export(w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.listLocked()
	if err != nil {
		return s.countOp("export", err)
	}
	doc := exportDoc{
		Version:    ExportVersion,
		ExportedAt: s.clock.Now().UTC(),
		Bookmarks:  list,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return s.countOp("export", enc.Encode(doc))
}

// Import replaces the whole store with the document's bookmark list.
// Destructive by design and cannot be undone. Returns ErrInvalidFormat
// unless the document's bookmarks field is an array.
func (s *Store) Import(r io.Reader) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var raw struct {
		Bookmarks json.RawMessage `json:"bookmarks"`
	}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return s.countOp("import", domain.ErrInvalidFormat)
	}
	if len(raw.Bookmarks) == 0 {
		return s.countOp("import", domain.ErrInvalidFormat)
	}
	var imported []Bookmark
	if err := json.Unmarshal(raw.Bookmarks, &imported); err != nil {
		return s.countOp("import", domain.ErrInvalidFormat)
	}

	list := make([]storedBookmark, 0, len(imported))
	anns := make(map[string][]Annotation, len(imported))
	for _, b := range imported {
		sb := storedBookmark{Policy: b.Policy, ID: b.ID, BookmarkedAt: b.BookmarkedAt}
		if sb.ID == "" {
			sb.ID = s.newID("bm", sb.LawID)
		}
		list = append(list, sb)
		if len(b.Annotations) > 0 {
			anns[b.LawID] = b.Annotations
		}
	}

	if err := s.writeBookmarks(list); err != nil {
		return s.countOp("import", err)
	}
	if err := s.writeAnnotations(anns); err != nil {
		return s.countOp("import", err)
	}

	s.logger.Info("bookmarks imported", "count", len(list))
	return s.countOp("import", nil)
}

// Clear removes both persisted keys.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Delete(keyBookmarks); err != nil {
		return err
	}
	return s.kv.Delete(keyAnnotations)
}

func (s *Store) isBookmarkedLocked(lawID string) (bool, error) {
	list, err := s.readBookmarks()
	if err != nil {
		return false, err
	}
	for _, b := range list {
		if b.LawID == lawID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) readBookmarks() ([]storedBookmark, error) {
	data, ok, err := s.kv.Get(keyBookmarks)
	if err != nil || !ok {
		return nil, err
	}
	var list []storedBookmark
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode %s: %w", keyBookmarks, err)
	}
	return list, nil
}

func (s *Store) writeBookmarks(list []storedBookmark) error {
	data, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return s.kv.Set(keyBookmarks, data)
}

func (s *Store) readAnnotations() (map[string][]Annotation, error) {
	data, ok, err := s.kv.Get(keyAnnotations)
	if err != nil {
		return nil, err
	}
	if !ok {
		return make(map[string][]Annotation), nil
	}
	var anns map[string][]Annotation
	if err := json.Unmarshal(data, &anns); err != nil {
		return nil, fmt.Errorf("decode %s: %w", keyAnnotations, err)
	}
	return anns, nil
}

func (s *Store) writeAnnotations(anns map[string][]Annotation) error {
	data, err := json.Marshal(anns)
	if err != nil {
		return err
	}
	return s.kv.Set(keyAnnotations, data)
}

// newID derives a deterministic-enough ID from the law_id, the clock, and
// a per-process sequence number.
func (s *Store) newID(prefix, lawID string) string {
	s.seq++
	input := fmt.Sprintf("%s|%d|%d", lawID, s.clock.Now().UnixNano(), s.seq)
	hash := sha256.Sum256([]byte(input))
	return prefix + "-" + hex.EncodeToString(hash[:8])
}

// countOp records the op outcome metric and passes the error through.
func (s *Store) countOp(op string, err error) error {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	s.metrics.BookmarkOps.WithLabelValues(op, outcome).Inc()
	return err
}
