package bookmarks

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacifymap/incident-map-service/internal/domain"
	"github.com/pacifymap/incident-map-service/internal/observability"
)

var policyA = domain.Policy{
	LawID: "PA-101", State: "Pennsylvania", LawClass: "background checks",
	Effect: domain.EffectRestrictive, EffectiveDate: "2001-06-15",
	OriginalContent: "Section 1.", HumanExplanation: "Checks required.",
}

var policyB = domain.Policy{
	LawID: "TX-7", State: "Texas", LawClass: "carry",
	Effect: domain.EffectPermissive, EffectiveDate: "1995-09-01",
}

func newTestStore(t *testing.T, kv KV) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := clockwork.NewFakeClockAt(time.Date(2025, time.August, 1, 12, 0, 0, 0, time.UTC))
	return NewStore(kv, clock, logger, observability.NewMetricsForTesting())
}

func TestStore_BookmarkIsIdempotentPerLawID(t *testing.T) {
	s := newTestStore(t, NewMemKV())

	b, err := s.Bookmark(policyA)
	require.NoError(t, err)
	assert.NotEmpty(t, b.ID)
	assert.Equal(t, "PA-101", b.LawID)

	_, err = s.Bookmark(policyA)
	assert.ErrorIs(t, err, domain.ErrAlreadyBookmarked)

	ok, err := s.IsBookmarked("PA-101")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStore_ListKeepsInsertionOrder(t *testing.T) {
	s := newTestStore(t, NewMemKV())

	_, err := s.Bookmark(policyA)
	require.NoError(t, err)
	_, err = s.Bookmark(policyB)
	require.NoError(t, err)

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "PA-101", list[0].LawID)
	assert.Equal(t, "TX-7", list[1].LawID)
}

func TestStore_UnbookmarkPurgesAnnotations(t *testing.T) {
	s := newTestStore(t, NewMemKV())

	_, err := s.Bookmark(policyA)
	require.NoError(t, err)
	_, err = s.AddAnnotation("PA-101", AnnotationInput{Type: AnnotationNote, Content: "x"})
	require.NoError(t, err)

	require.NoError(t, s.Unbookmark("PA-101"))

	ok, err := s.IsBookmarked("PA-101")
	require.NoError(t, err)
	assert.False(t, ok)

	// Re-bookmarking starts with no annotations.
	_, err = s.Bookmark(policyA)
	require.NoError(t, err)
	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Empty(t, list[0].Annotations)
}

func TestStore_UnbookmarkUnknown(t *testing.T) {
	s := newTestStore(t, NewMemKV())
	assert.ErrorIs(t, s.Unbookmark("missing"), domain.ErrNotBookmarked)
}

func TestStore_AnnotationLifecycle(t *testing.T) {
	s := newTestStore(t, NewMemKV())

	_, err := s.Bookmark(policyA)
	require.NoError(t, err)

	ann, err := s.AddAnnotation("PA-101", AnnotationInput{Type: AnnotationQuestion, Content: "why?"})
	require.NoError(t, err)
	assert.NotEmpty(t, ann.ID)
	assert.Nil(t, ann.UpdatedAt)

	require.NoError(t, s.UpdateAnnotation("PA-101", ann.ID, "why exactly?"))

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list[0].Annotations, 1)
	got := list[0].Annotations[0]
	assert.Equal(t, "why exactly?", got.Content)
	require.NotNil(t, got.UpdatedAt)

	require.NoError(t, s.RemoveAnnotation("PA-101", ann.ID))
	list, err = s.List()
	require.NoError(t, err)
	assert.Empty(t, list[0].Annotations)
}

func TestStore_AddAnnotationRequiresBookmark(t *testing.T) {
	s := newTestStore(t, NewMemKV())
	_, err := s.AddAnnotation("missing", AnnotationInput{Type: AnnotationNote, Content: "x"})
	assert.ErrorIs(t, err, domain.ErrNotBookmarked)
}

func TestStore_AddAnnotationRejectsUnknownType(t *testing.T) {
	s := newTestStore(t, NewMemKV())
	_, err := s.Bookmark(policyA)
	require.NoError(t, err)

	_, err = s.AddAnnotation("PA-101", AnnotationInput{Type: "rant", Content: "x"})
	assert.Error(t, err)
}

func TestStore_ExportImportRoundTrip(t *testing.T) {
	s := newTestStore(t, NewMemKV())

	_, err := s.Bookmark(policyA)
	require.NoError(t, err)
	_, err = s.AddAnnotation("PA-101", AnnotationInput{Type: AnnotationNote, Content: "x"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, s.Export(&buf))
	assert.Contains(t, buf.String(), `"version": "1.0.0"`)

	before, err := s.List()
	require.NoError(t, err)

	// Clear storage, then import the exported document.
	require.NoError(t, s.Clear())
	list, err := s.List()
	require.NoError(t, err)
	require.Empty(t, list)

	require.NoError(t, s.Import(&buf))

	after, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	require.Len(t, after, 1)
	require.Len(t, after[0].Annotations, 1)
	assert.Equal(t, "x", after[0].Annotations[0].Content)
}

func TestStore_ImportInvalidFormat(t *testing.T) {
	s := newTestStore(t, NewMemKV())

	tests := []struct {
		name string
		body string
	}{
		{"not json", "not json"},
		{"missing bookmarks", `{"version": "1.0.0"}`},
		{"bookmarks not an array", `{"bookmarks": {"law_id": "x"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Import(strings.NewReader(tt.body))
			assert.ErrorIs(t, err, domain.ErrInvalidFormat)
		})
	}
}

func TestStore_ImportReplacesExistingState(t *testing.T) {
	s := newTestStore(t, NewMemKV())

	_, err := s.Bookmark(policyB)
	require.NoError(t, err)

	doc := `{"version":"1.0.0","bookmarks":[
		{"law_id":"PA-101","state":"Pennsylvania","law_class":"background checks",
		 "effect":"restrictive","effective_date":"2001-06-15",
		 "bookmarked_at":"2025-01-01T00:00:00Z",
		 "annotations":[{"id":"ann-1","type":"note","content":"kept","created_at":"2025-01-01T00:00:00Z"}]}
	]}`
	require.NoError(t, s.Import(strings.NewReader(doc)))

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "PA-101", list[0].LawID)
	assert.Equal(t, "kept", list[0].Annotations[0].Content)

	ok, err := s.IsBookmarked("TX-7")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileKV_RoundTrip(t *testing.T) {
	kv, err := NewFileKV(t.TempDir())
	require.NoError(t, err)

	_, ok, err := kv.Get(keyBookmarks)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set(keyBookmarks, []byte(`[]`)))
	data, ok, err := kv.Get(keyBookmarks)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[]`, string(data))

	require.NoError(t, kv.Delete(keyBookmarks))
	_, ok, err = kv.Get(keyBookmarks)
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting a missing key is fine.
	require.NoError(t, kv.Delete(keyBookmarks))
}

func TestStore_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	kv, err := NewFileKV(dir)
	require.NoError(t, err)

	s1 := newTestStore(t, kv)
	_, err = s1.Bookmark(policyA)
	require.NoError(t, err)

	kv2, err := NewFileKV(dir)
	require.NoError(t, err)
	s2 := newTestStore(t, kv2)

	ok, err := s2.IsBookmarked("PA-101")
	require.NoError(t, err)
	assert.True(t, ok)
}
