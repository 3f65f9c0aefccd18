package mkvtag

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// mustEncode encodes c, failing the test on the validation error that
// a name-empty SimpleTag would produce; every caller here builds a
// well-formed Collection, so any error is a test bug, not an expected
// outcome.
func mustEncode(t *testing.T, c *Collection) []byte {
	t.Helper()
	data, err := c.encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return data
}

func TestCollectionEncodeParseRoundTrip(t *testing.T) {
	c := CollectionCreate()
	tag := c.AddTag(DefaultTargetType)
	tag.AddTrackUID(42)
	title := tag.AddSimple("TITLE", "My Title")
	title.SetLanguage("eng", false)
	title.AddNested("SORT_WITH", "Title, My")

	encoded := mustEncode(t, c)
	s, h := elementAt(t, encoded)

	parsed, err := parseTags(s, h)
	if err != nil {
		t.Fatalf("parseTags: %v", err)
	}
	if len(parsed.Tags) != 1 {
		t.Fatalf("len(Tags) = %d, want 1", len(parsed.Tags))
	}
	pt := parsed.Tags[0]
	if len(pt.Targets.TrackUIDs) != 1 || pt.Targets.TrackUIDs[0] != 42 {
		t.Errorf("TrackUIDs = %v, want [42]", pt.Targets.TrackUIDs)
	}
	if len(pt.Simple) != 1 {
		t.Fatalf("len(Simple) = %d, want 1", len(pt.Simple))
	}
	st := pt.Simple[0]
	if st.Name != "TITLE" || st.String != "My Title" || st.Language != "eng" {
		t.Errorf("SimpleTag = %+v", st)
	}
	if len(st.Nested) != 1 || st.Nested[0].Name != "SORT_WITH" {
		t.Errorf("Nested = %+v", st.Nested)
	}
}

func TestCollectionFindStringOnlyAlbumLevel(t *testing.T) {
	c := CollectionCreate()

	albumTag := c.AddTag(DefaultTargetType)
	albumTag.AddSimple("ALBUM", "Greatest Hits")

	trackTag := c.AddTag(TargetShot)
	trackTag.AddTrackUID(7)
	trackTag.AddSimple("ALBUM", "Wrong Scope")

	v, ok := c.FindString("album")
	if !ok || v != "Greatest Hits" {
		t.Errorf("FindString(album) = (%q, %v), want (Greatest Hits, true)", v, ok)
	}
}

func TestSimpleTagSetBinaryClearsString(t *testing.T) {
	c := CollectionCreate()
	tag := c.AddTag(DefaultTargetType)
	st := tag.AddSimple("COVER", "placeholder")
	st.SetBinary([]byte{1, 2, 3})

	if st.HasString {
		t.Error("SetBinary should clear HasString")
	}
	if !st.HasBinary || len(st.Binary) != 3 {
		t.Errorf("SetBinary did not set Binary: %+v", st)
	}
}

func TestTargetsIsAlbumLevel(t *testing.T) {
	tg := Targets{TargetTypeValue: DefaultTargetType}
	if !tg.IsAlbumLevel() {
		t.Error("empty UID Targets at default type should be album-level")
	}
	tg.TrackUIDs = []uint64{1}
	if tg.IsAlbumLevel() {
		t.Error("Targets with a TrackUID should not be album-level")
	}
}

func TestCollectionParseMatchesBuiltTree(t *testing.T) {
	built := CollectionCreate()
	tag := built.AddTag(TargetAlbum)
	tag.AddSimple("GENRE", "Jazz")

	encoded := mustEncode(t, built)
	s, h := elementAt(t, encoded)
	parsed, err := parseTags(s, h)
	if err != nil {
		t.Fatalf("parseTags: %v", err)
	}

	want := &Collection{Tags: []*Tag{{
		Targets: Targets{TargetTypeValue: TargetAlbum},
		Simple: []*SimpleTag{{
			Name: "GENRE", Language: "und", Default: true,
			String: "Jazz", HasString: true,
		}},
	}}}
	if diff := cmp.Diff(want, parsed); diff != "" {
		t.Errorf("parsed Collection mismatch (-want +got):\n%s", diff)
	}
}

func TestSimpleTagEncodeOmitsUnsetLanguageAndDefaultTag(t *testing.T) {
	// A SimpleTag built directly (not via AddSimple) with no language and
	// the default is-default value should omit TagLanguage (written only
	// when set) and TagDefault (written only when false) on write, with
	// the reader still defaulting Language to "und".
	c := &Collection{Tags: []*Tag{{
		Targets: Targets{TargetTypeValue: DefaultTargetType},
		Simple: []*SimpleTag{{
			Name: "TITLE", String: "No Language", HasString: true, Default: true,
		}},
	}}}
	encoded := mustEncode(t, c)
	s, h := elementAt(t, encoded)
	parsed, err := parseTags(s, h)
	if err != nil {
		t.Fatalf("parseTags: %v", err)
	}
	st := parsed.Tags[0].Simple[0]
	if st.Language != "und" {
		t.Errorf("Language = %q, want und (reader default for omitted TagLanguage)", st.Language)
	}
	if !st.Default {
		t.Errorf("Default = %v, want true (reader default for omitted TagDefault)", st.Default)
	}
}

func TestSimpleTagEncodeWritesDefaultOnlyWhenFalse(t *testing.T) {
	c := &Collection{Tags: []*Tag{{
		Targets: Targets{TargetTypeValue: DefaultTargetType},
		Simple: []*SimpleTag{{
			Name: "HIDDEN", String: "x", HasString: true, Default: false, Language: "und",
		}},
	}}}
	encoded := mustEncode(t, c)
	s, h := elementAt(t, encoded)
	parsed, err := parseTags(s, h)
	if err != nil {
		t.Fatalf("parseTags: %v", err)
	}
	if parsed.Tags[0].Simple[0].Default {
		t.Error("Default = true, want false to round-trip through an explicit TagDefault=0")
	}
}

func TestCollectionEncodeRejectsEmptyName(t *testing.T) {
	c := CollectionCreate()
	tag := c.AddTag(DefaultTargetType)
	tag.AddSimple("", "no name")

	if _, err := c.encode(); !errors.Is(err, ErrInvalidArg) {
		t.Fatalf("encode() with empty SimpleTag name = %v, want ErrInvalidArg", err)
	}
}

func TestCollectionEncodeRejectsEmptyNestedName(t *testing.T) {
	c := CollectionCreate()
	tag := c.AddTag(DefaultTargetType)
	title := tag.AddSimple("TITLE", "fine")
	title.AddNested("", "also no name")

	if _, err := c.encode(); !errors.Is(err, ErrInvalidArg) {
		t.Fatalf("encode() with empty nested SimpleTag name = %v, want ErrInvalidArg", err)
	}
}

func TestEncodeDeterministicOrder(t *testing.T) {
	c := CollectionCreate()
	tag := c.AddTag(DefaultTargetType)
	tag.AddSimple("A", "1")
	tag.AddSimple("B", "2")

	first := mustEncode(t, c)
	second := mustEncode(t, c)
	if string(first) != string(second) {
		t.Error("encode() should be deterministic for an unchanged Collection")
	}
}
