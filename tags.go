package mkvtag

// Tag model and codec. The shape mirrors the Tag/TagTarget/SimpleTag
// struct-tag model used by other pure-Go Matroska parsers, minus the
// struct-tag reflection machinery: this package has no generic
// EBML-to-struct mapper, so parseTags/Collection.encode hand-roll the
// same dispatch switch used for every other master element.

// SimpleTag is one name/value entry, optionally nested under another
// SimpleTag.
type SimpleTag struct {
	Name      string
	Language  string // BCP47 tag if LanguageBCP47 was present, else ISO639-2
	BCP47     bool
	Default   bool
	String    string
	HasString bool
	Binary    []byte
	HasBinary bool
	Nested    []*SimpleTag
}

// AddNested appends a child SimpleTag named name with string value
// value and returns it for further configuration.
func (st *SimpleTag) AddNested(name, value string) *SimpleTag {
	child := &SimpleTag{Name: name, String: value, HasString: true, Default: true, Language: "und"}
	st.Nested = append(st.Nested, child)
	return child
}

// SetLanguage sets the SimpleTag's language. If bcp47 is true the value
// is written as TagLanguageBCP47 and no TagLanguage element is written:
// the model holds a single language value.
func (st *SimpleTag) SetLanguage(lang string, bcp47 bool) {
	st.BCP47 = bcp47
	if bcp47 {
		st.Language = lang
		return
	}
	st.Language = lang
}

// SetBinary sets the SimpleTag's binary payload, clearing any string
// value: a SimpleTag carries at most one of String/Binary.
func (st *SimpleTag) SetBinary(b []byte) {
	st.Binary = b
	st.HasBinary = true
	st.String = ""
	st.HasString = false
}

// Targets describes what a Tag applies to.
type Targets struct {
	TargetTypeValue TargetType
	TargetType      string
	TrackUIDs       []uint64
	EditionUIDs     []uint64
	ChapterUIDs     []uint64
	AttachmentUIDs  []uint64
}

// IsAlbumLevel reports whether t targets the whole item (no UID list
// and the default target type), the scope SetTagString/RemoveTag
// operate on.
func (t Targets) IsAlbumLevel() bool {
	return t.TargetTypeValue == DefaultTargetType &&
		len(t.TrackUIDs) == 0 && len(t.EditionUIDs) == 0 &&
		len(t.ChapterUIDs) == 0 && len(t.AttachmentUIDs) == 0
}

// Tag is one Tag element: a Targets descriptor plus its SimpleTag
// list.
type Tag struct {
	Targets Targets
	Simple  []*SimpleTag
}

// AddSimple appends a top-level SimpleTag named name with string value
// value and returns it for further configuration (e.g. SetLanguage,
// AddNested).
func (t *Tag) AddSimple(name, value string) *SimpleTag {
	st := &SimpleTag{Name: name, String: value, HasString: true, Default: true, Language: "und"}
	t.Simple = append(t.Simple, st)
	return st
}

// AddTrackUID, AddEditionUID, AddChapterUID, AddAttachmentUID append a
// UID to the Tag's Targets descriptor.
func (t *Tag) AddTrackUID(uid uint64)      { t.Targets.TrackUIDs = append(t.Targets.TrackUIDs, uid) }
func (t *Tag) AddEditionUID(uid uint64)    { t.Targets.EditionUIDs = append(t.Targets.EditionUIDs, uid) }
func (t *Tag) AddChapterUID(uid uint64)    { t.Targets.ChapterUIDs = append(t.Targets.ChapterUIDs, uid) }
func (t *Tag) AddAttachmentUID(uid uint64) { t.Targets.AttachmentUIDs = append(t.Targets.AttachmentUIDs, uid) }

// Collection is the full in-memory model of a Tags element, the unit
// ReadTags returns and SetTagString/RemoveTag mutate before a
// write-back.
type Collection struct {
	Tags []*Tag
}

// CollectionCreate returns an empty Collection, used both for a file
// that has no Tags element yet and as the builder entry point.
func CollectionCreate() *Collection {
	return &Collection{}
}

// AddTag appends a new Tag targeting targetType with no UIDs (an
// item-level tag) and returns it.
func (c *Collection) AddTag(targetType TargetType) *Tag {
	t := &Tag{Targets: Targets{TargetTypeValue: targetType}}
	c.Tags = append(c.Tags, t)
	return t
}

// FindString returns the string value of the first top-level SimpleTag
// named name (case-insensitive) in an album-level Tag, and whether one
// was found.
func (c *Collection) FindString(name string) (string, bool) {
	for _, t := range c.Tags {
		if !t.Targets.IsAlbumLevel() {
			continue
		}
		for _, st := range t.Simple {
			if equalFoldASCII(st.Name, name) && st.HasString {
				return st.String, true
			}
		}
	}
	return "", false
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// --- parsing ---

// parseTags decodes the full Tags element at h into a Collection,
// using the same child-dispatch-switch parse loop as the navigator's
// prologue scan, generalized to nested SimpleTag.
func parseTags(s *stream, h header) (*Collection, error) {
	c := &Collection{}
	if _, err := s.seek(h.dataOffset, SeekStart); err != nil {
		return nil, err
	}
	for s.tell() < h.endOffset {
		child, err := readElementHeader(s)
		if err != nil {
			return nil, err
		}
		if child.id == idTag {
			tag, err := parseTag(s, child)
			if err != nil {
				return nil, err
			}
			c.Tags = append(c.Tags, tag)
		}
		if _, err := s.seek(child.endOffset, SeekStart); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func parseTag(s *stream, h header) (*Tag, error) {
	t := &Tag{Targets: Targets{TargetTypeValue: DefaultTargetType}}
	if _, err := s.seek(h.dataOffset, SeekStart); err != nil {
		return nil, err
	}
	for s.tell() < h.endOffset {
		child, err := readElementHeader(s)
		if err != nil {
			return nil, err
		}
		switch child.id {
		case idTargets:
			if err := parseTargets(s, child, &t.Targets); err != nil {
				return nil, err
			}
		case idSimpleTag:
			st, err := parseSimpleTag(s, child)
			if err != nil {
				return nil, err
			}
			t.Simple = append(t.Simple, st)
		}
		if _, err := s.seek(child.endOffset, SeekStart); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func parseTargets(s *stream, h header, tg *Targets) error {
	if _, err := s.seek(h.dataOffset, SeekStart); err != nil {
		return err
	}
	hasExplicitType := false
	for s.tell() < h.endOffset {
		child, err := readElementHeader(s)
		if err != nil {
			return err
		}
		switch child.id {
		case idTargetTypeValue:
			v, err := readUint(s, child)
			if err != nil {
				return err
			}
			tg.TargetTypeValue = TargetType(v)
			hasExplicitType = true
		case idTargetType:
			v, err := readString(s, child)
			if err != nil {
				return err
			}
			tg.TargetType = v
		case idTagTrackUID:
			v, err := readUint(s, child)
			if err != nil {
				return err
			}
			tg.TrackUIDs = append(tg.TrackUIDs, v)
		case idTagEditionUID:
			v, err := readUint(s, child)
			if err != nil {
				return err
			}
			tg.EditionUIDs = append(tg.EditionUIDs, v)
		case idTagChapterUID:
			v, err := readUint(s, child)
			if err != nil {
				return err
			}
			tg.ChapterUIDs = append(tg.ChapterUIDs, v)
		case idTagAttachmentUID:
			v, err := readUint(s, child)
			if err != nil {
				return err
			}
			tg.AttachmentUIDs = append(tg.AttachmentUIDs, v)
		}
		if _, err := s.seek(child.endOffset, SeekStart); err != nil {
			return err
		}
	}
	if !hasExplicitType {
		tg.TargetTypeValue = DefaultTargetType
	}
	return nil
}

func parseSimpleTag(s *stream, h header) (*SimpleTag, error) {
	st := &SimpleTag{Default: true, Language: "und"}
	if _, err := s.seek(h.dataOffset, SeekStart); err != nil {
		return nil, err
	}
	for s.tell() < h.endOffset {
		child, err := readElementHeader(s)
		if err != nil {
			return nil, err
		}
		switch child.id {
		case idTagName:
			st.Name, err = readString(s, child)
		case idTagLanguage:
			st.Language, err = readString(s, child)
			st.BCP47 = false
		case idTagLanguageBCP47:
			st.Language, err = readString(s, child)
			st.BCP47 = true
		case idTagDefault:
			var v uint64
			v, err = readUint(s, child)
			st.Default = v != 0
		case idTagString:
			st.String, err = readString(s, child)
			st.HasString = true
		case idTagBinary:
			st.Binary, err = readContentBytes(s, child)
			st.HasBinary = true
		case idSimpleTag:
			var nested *SimpleTag
			nested, err = parseSimpleTag(s, child)
			if err == nil {
				st.Nested = append(st.Nested, nested)
			}
		}
		if err != nil {
			return nil, err
		}
		if _, err := s.seek(child.endOffset, SeekStart); err != nil {
			return nil, err
		}
	}
	return st, nil
}

// --- serialization ---

// validate rejects a Collection that cannot be serialized: a SimpleTag
// with an empty Name, at any nesting depth, is not a legal Matroska
// TagName and must be caught here rather than silently written out as
// a zero-length element.
func (c *Collection) validate() error {
	for _, t := range c.Tags {
		for _, st := range t.Simple {
			if err := st.validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (st *SimpleTag) validate() error {
	if st.Name == "" {
		return wrapf(ErrInvalidArg, "simple tag has an empty name")
	}
	for _, nested := range st.Nested {
		if err := nested.validate(); err != nil {
			return err
		}
	}
	return nil
}

// encode serializes c to a complete Tags element, children in the
// order they were built/parsed (deterministic order so repeated writes
// of an unchanged Collection produce byte-identical output). Sizes are
// computed bottom-up: each child's content is built first so its
// length is known before the parent header is emitted.
func (c *Collection) encode() ([]byte, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	var content []byte
	for _, t := range c.Tags {
		content = append(content, t.encode()...)
	}
	out := appendMasterHeader(nil, idTags, len(content))
	return append(out, content...), nil
}

func (t *Tag) encode() []byte {
	var content []byte
	content = append(content, t.Targets.encode()...)
	for _, st := range t.Simple {
		content = append(content, st.encode()...)
	}
	out := appendMasterHeader(nil, idTag, len(content))
	return append(out, content...)
}

func (tg *Targets) encode() []byte {
	var content []byte
	content = appendUint(content, idTargetTypeValue, uint64(tg.TargetTypeValue))
	if tg.TargetType != "" {
		content = appendString(content, idTargetType, tg.TargetType)
	}
	for _, uid := range tg.TrackUIDs {
		content = appendUint(content, idTagTrackUID, uid)
	}
	for _, uid := range tg.EditionUIDs {
		content = appendUint(content, idTagEditionUID, uid)
	}
	for _, uid := range tg.ChapterUIDs {
		content = appendUint(content, idTagChapterUID, uid)
	}
	for _, uid := range tg.AttachmentUIDs {
		content = appendUint(content, idTagAttachmentUID, uid)
	}
	out := appendMasterHeader(nil, idTargets, len(content))
	return append(out, content...)
}

func (st *SimpleTag) encode() []byte {
	var content []byte
	content = appendString(content, idTagName, st.Name)
	if st.BCP47 {
		content = appendString(content, idTagLanguageBCP47, st.Language)
	} else if st.Language != "" {
		content = appendString(content, idTagLanguage, st.Language)
	}
	if !st.Default {
		content = appendUint(content, idTagDefault, 0)
	}
	if st.HasString {
		content = appendString(content, idTagString, st.String)
	}
	if st.HasBinary {
		content = appendBinary(content, idTagBinary, st.Binary)
	}
	for _, nested := range st.Nested {
		content = append(content, nested.encode()...)
	}
	out := appendMasterHeader(nil, idSimpleTag, len(content))
	return append(out, content...)
}
