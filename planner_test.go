package mkvtag

import (
	"errors"
	"os"
	"testing"

	"go.uber.org/zap"
)

func openRWNavigated(t *testing.T, data []byte) (*stream, *navigator) {
	t.Helper()
	path := writeTempFile(t, data)
	s, err := openRW(path)
	if err != nil {
		t.Fatalf("openRW: %v", err)
	}
	t.Cleanup(func() { s.close() })

	nav, err := newNavigator(s, zap.NewNop())
	if err != nil {
		t.Fatalf("newNavigator: %v", err)
	}
	if err := nav.navigate(); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	return s, nav
}

func readBackTags(t *testing.T, s *stream, nav *navigator) *Collection {
	t.Helper()
	if _, err := s.seek(nav.struc.tags, SeekStart); err != nil {
		t.Fatalf("seek: %v", err)
	}
	h, err := readElementHeader(s)
	if err != nil {
		t.Fatalf("readElementHeader: %v", err)
	}
	c, err := parseTags(s, h)
	if err != nil {
		t.Fatalf("parseTags: %v", err)
	}
	return c
}

func TestWriteTagsInPlaceSameSize(t *testing.T) {
	original := CollectionCreate()
	tag := original.AddTag(DefaultTargetType)
	tag.AddSimple("TITLE", "AAAA")
	tagsBytes := mustEncode(t, original)

	data := buildMinimalFile(t, tagsBytes)
	s, nav := openRWNavigated(t, data)

	updated := CollectionCreate()
	tag2 := updated.AddTag(DefaultTargetType)
	tag2.AddSimple("TITLE", "BBBB")

	if err := writeTags(s, nav, updated, zap.NewNop()); err != nil {
		t.Fatalf("writeTags: %v", err)
	}

	got := readBackTags(t, s, nav)
	v, ok := got.FindString("title")
	if !ok || v != "BBBB" {
		t.Errorf("FindString(title) = (%q, %v), want (BBBB, true)", v, ok)
	}
}

// buildFileWithVoidBeforeTags places a large Void ahead of a small
// Tags element, so it is not the old Tags element's immediately
// following neighbor: the in-place strategy (which only looks
// directly after the old Tags span) cannot use it, isolating the
// largest-void strategy for the test below.
func buildFileWithVoidBeforeTags(t *testing.T, tagsBytes []byte, voidTotal int) []byte {
	t.Helper()

	ebmlContent := appendString(nil, idEBMLDocType, "matroska")
	ebmlHeader := append(appendMasterHeader(nil, idEBMLHeader, len(ebmlContent)), ebmlContent...)

	voidBytes, err := appendVoid(nil, voidTotal)
	if err != nil {
		t.Fatalf("appendVoid: %v", err)
	}

	// The placeholder position already needs the same uint width as the
	// final one (the Void alone pushes Tags past 255), so both passes
	// produce a SeekHead of the same length.
	placeholder := buildSeekHead(buildSeek(idTags, uint64(len(voidBytes))))
	tagsRelPos := uint64(len(placeholder) + len(voidBytes))
	seekHead := buildSeekHead(buildSeek(idTags, tagsRelPos))
	if len(seekHead) != len(placeholder) {
		t.Fatalf("seekHead length changed between passes: %d vs %d", len(seekHead), len(placeholder))
	}

	segmentContent := append(append([]byte{}, seekHead...), voidBytes...)
	segmentContent = append(segmentContent, tagsBytes...)
	segmentHeader := append(encodeID(idSegment, nil), 0x01, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF)

	full := append(append([]byte{}, ebmlHeader...), segmentHeader...)
	return append(full, segmentContent...)
}

func TestWriteTagsGrowthUsesLargestVoid(t *testing.T) {
	original := CollectionCreate()
	tag := original.AddTag(DefaultTargetType)
	tag.AddSimple("TITLE", "A")
	tagsBytes := mustEncode(t, original)

	data := buildFileWithVoidBeforeTags(t, tagsBytes, 512)
	s, nav := openRWNavigated(t, data)
	if nav.struc.largestVoid.offset == absent {
		t.Fatal("expected prologue scan to find the Void ahead of Tags")
	}

	bigger := CollectionCreate()
	bigTag := bigger.AddTag(DefaultTargetType)
	for i := 0; i < 5; i++ {
		bigTag.AddSimple("FIELD", "some reasonably long value to force growth")
	}

	if err := writeTags(s, nav, bigger, zap.NewNop()); err != nil {
		t.Fatalf("writeTags: %v", err)
	}

	got := readBackTags(t, s, nav)
	if len(got.Tags) != 1 || len(got.Tags[0].Simple) != 5 {
		t.Fatalf("round-tripped collection = %+v", got)
	}
}

func TestWriteTagsAppendWhenNoSpaceFits(t *testing.T) {
	data := buildMinimalFile(t, mustEncode(t, CollectionCreate()))
	beforeSize := int64(len(data))

	s, nav := openRWNavigated(t, data)

	huge := CollectionCreate()
	hugeTag := huge.AddTag(DefaultTargetType)
	for i := 0; i < 50; i++ {
		hugeTag.AddSimple("FIELD", "padding padding padding padding padding")
	}

	if err := writeTags(s, nav, huge, zap.NewNop()); err != nil {
		t.Fatalf("writeTags: %v", err)
	}

	fi, err := os.Stat(pathOf(t, s))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if fi.Size() <= beforeSize {
		t.Errorf("expected file to grow via append strategy, size = %d, before = %d", fi.Size(), beforeSize)
	}

	got := readBackTags(t, s, nav)
	if len(got.Tags) != 1 || len(got.Tags[0].Simple) != 50 {
		t.Fatalf("round-tripped collection has %d tags", len(got.Tags))
	}
}

// buildFileWithKnownSizeSegment assembles [EBML header][Segment(known
// size, encoded in exactly sizeLen bytes)[segmentContent]], used to
// exercise the Strategy 3 Segment-size-VINT-overflow path: every other
// test in this file uses an unknown-size Segment, which never needs its
// size VINT patched at all.
func buildFileWithKnownSizeSegment(t *testing.T, segmentContent []byte, sizeLen int) []byte {
	t.Helper()

	ebmlContent := appendString(nil, idEBMLDocType, "matroska")
	ebmlHeader := append(appendMasterHeader(nil, idEBMLHeader, len(ebmlContent)), ebmlContent...)

	segmentHeader := encodeID(idSegment, nil)
	sizeBuf, ok := encodeVintFixed(uint64(len(segmentContent)), sizeLen, nil)
	if !ok {
		t.Fatalf("segment content length %d does not fit a %d-byte size VINT", len(segmentContent), sizeLen)
	}
	segmentHeader = append(segmentHeader, sizeBuf...)

	full := append(append([]byte{}, ebmlHeader...), segmentHeader...)
	return append(full, segmentContent...)
}

func TestWriteTagsAppendFailsWhenSegmentSizeVintOverflows(t *testing.T) {
	// A 1-byte size VINT caps the Segment's declared content size at 126
	// (vintMax(1)). Starting from an empty Segment (no Tags, no Void, so
	// Strategies 1 and 2 both decline), appending a Tags element bigger
	// than that leaves no way to patch the size VINT in place.
	data := buildFileWithKnownSizeSegment(t, nil, 1)
	s, nav := openRWNavigated(t, data)

	huge := CollectionCreate()
	hugeTag := huge.AddTag(DefaultTargetType)
	for i := 0; i < 5; i++ {
		hugeTag.AddSimple("FIELD", "padding padding padding padding padding")
	}

	err := writeTags(s, nav, huge, zap.NewNop())
	if !errors.Is(err, ErrNoSpace) {
		t.Fatalf("writeTags = %v, want ErrNoSpace", err)
	}
}

// pathOf recovers the *os.File's name for the final size assertion;
// stream does not expose its path directly since production code never
// needs it after open.
func pathOf(t *testing.T, s *stream) string {
	t.Helper()
	return s.f.Name()
}
