package mkvtag

import "go.uber.org/zap"

// Context is the public handle on an open Matroska/WebM file. It
// wraps a stream plus the navigator's discovered structure and a
// cached Tags Collection behind a thin facade: parser and reader
// fields, with methods that delegate into the navigator.
type Context struct {
	s   *stream
	nav *navigator
	log *zap.Logger

	tags      *Collection
	tagsValid bool
}

// Option configures a Context at Open/OpenRW time.
type Option func(*Context)

// WithLogger overrides the default no-op zap.Logger. A nil l keeps the
// no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Context) {
		if l != nil {
			c.log = l
		}
	}
}

// Open opens path read-only and discovers its structure. The returned
// Context must be closed with Close.
func Open(path string, opts ...Option) (*Context, error) {
	return open(path, false, opts)
}

// OpenRW opens path read-write. SetTagString and RemoveTag require a
// Context opened this way.
func OpenRW(path string, opts ...Option) (*Context, error) {
	return open(path, true, opts)
}

func open(path string, writable bool, opts []Option) (*Context, error) {
	var s *stream
	var err error
	if writable {
		s, err = openRW(path)
	} else {
		s, err = openRead(path)
	}
	if err != nil {
		return nil, err
	}

	c := &Context{s: s, log: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}

	nav, err := newNavigator(s, c.log)
	if err != nil {
		_ = s.close()
		return nil, err
	}
	c.nav = nav

	if err := nav.navigate(); err != nil {
		_ = s.close()
		return nil, err
	}
	return c, nil
}

// IsOpen reports whether the Context still owns an open file.
func (c *Context) IsOpen() bool { return c != nil && c.s.f != nil }

// Close releases the underlying file. It is safe to call more than
// once.
func (c *Context) Close() error {
	if !c.IsOpen() {
		return nil
	}
	return c.s.close()
}

func (c *Context) requireOpen() error {
	if !c.IsOpen() {
		return ErrNotOpen
	}
	return nil
}

func (c *Context) requireWritable() error {
	if err := c.requireOpen(); err != nil {
		return err
	}
	if !c.s.isWritable() {
		return ErrReadOnly
	}
	return nil
}

// ReadTags returns the file's tag Collection, parsing it from disk on
// first use and caching the result until the next successful write. A
// file with no Tags element returns an empty, non-nil Collection.
func (c *Context) ReadTags() (*Collection, error) {
	if err := c.requireOpen(); err != nil {
		return nil, err
	}
	if c.tagsValid {
		return c.tags, nil
	}

	tagsOffset := c.nav.topLevelOffset(idTags)
	if tagsOffset == absent {
		c.tags = CollectionCreate()
		c.tagsValid = true
		return c.tags, nil
	}

	if _, err := c.s.seek(tagsOffset, SeekStart); err != nil {
		return nil, err
	}
	h, err := readElementHeader(c.s)
	if err != nil {
		return nil, err
	}
	collection, err := parseTags(c.s, h)
	if err != nil {
		return nil, err
	}
	c.tags = collection
	c.tagsValid = true
	return c.tags, nil
}

// ReadTagString returns the string value of a top-level, album-level
// SimpleTag named name (case-insensitive), and whether one was found.
func (c *Context) ReadTagString(name string) (string, bool, error) {
	collection, err := c.ReadTags()
	if err != nil {
		return "", false, err
	}
	v, ok := collection.FindString(name)
	return v, ok, nil
}

// SetTagString sets (creating or updating) the album-level SimpleTag
// named name to value: every existing album-level SimpleTag with this
// name is updated in place; if none exists, one is added to the first
// album-level Tag (creating that Tag if the Collection has none yet).
//
// value == "" is the canonical remove path — Go has no string NULL,
// so the empty string plays that role — and is equivalent to
// RemoveTag(name).
func (c *Context) SetTagString(name, value string) error {
	if err := c.requireWritable(); err != nil {
		return err
	}
	if value == "" {
		return c.RemoveTag(name)
	}
	collection, err := c.ReadTags()
	if err != nil {
		return err
	}

	updated := false
	var albumTag *Tag
	for _, t := range collection.Tags {
		if !t.Targets.IsAlbumLevel() {
			continue
		}
		if albumTag == nil {
			albumTag = t
		}
		for _, st := range t.Simple {
			if equalFoldASCII(st.Name, name) {
				st.String = value
				st.HasString = true
				st.HasBinary = false
				st.Binary = nil
				updated = true
			}
		}
	}
	if !updated {
		if albumTag == nil {
			albumTag = collection.AddTag(DefaultTargetType)
		}
		albumTag.AddSimple(name, value)
	}

	return c.commit(collection)
}

// RemoveTag removes every top-level, album-level SimpleTag named name
// (case-insensitive). It is not an error for no such tag to exist.
func (c *Context) RemoveTag(name string) error {
	if err := c.requireWritable(); err != nil {
		return err
	}
	collection, err := c.ReadTags()
	if err != nil {
		return err
	}

	for _, t := range collection.Tags {
		if !t.Targets.IsAlbumLevel() {
			continue
		}
		kept := t.Simple[:0]
		for _, st := range t.Simple {
			if !equalFoldASCII(st.Name, name) {
				kept = append(kept, st)
			}
		}
		t.Simple = kept
	}

	return c.commit(collection)
}

// SetTags replaces the entire Collection with collection, for callers
// that build or transform a tree directly instead of going through
// SetTagString/RemoveTag.
func (c *Context) SetTags(collection *Collection) error {
	if err := c.requireWritable(); err != nil {
		return err
	}
	return c.commit(collection)
}

// commit writes collection to disk via the placement planner and
// invalidates the cache so the next ReadTags reflects what is now on
// disk: a write invalidates the cache rather than updating it
// directly, since the planner may have changed offsets the caller
// never sees.
func (c *Context) commit(collection *Collection) error {
	if err := writeTags(c.s, c.nav, collection, c.log); err != nil {
		return err
	}
	if err := c.s.flush(); err != nil {
		return err
	}
	c.tagsValid = false
	_, err := c.ReadTags()
	return err
}

// AbsentOffset is the sentinel StructureInfo fields use for a
// top-level element that the file does not contain.
const AbsentOffset = absent

// StructureInfo is a snapshot of the navigator's file structure
// record: the parsed EBML header fields, the Segment's bounds, the
// absolute offset of every top-level Segment child (AbsentOffset when
// not present), and the largest Void seen during the prologue scan.
// It exists for diagnostic tooling (see cmd/mkvtag's dump subcommand)
// that needs to inspect how a file is laid out without touching its
// Tags content.
type StructureInfo struct {
	EBMLVersion        uint64
	EBMLReadVersion    uint64
	DocType            string
	DocTypeVersion     uint64
	DocTypeReadVersion uint64

	SegmentOffset      int64
	SegmentDataOffset  int64
	SegmentSize        uint64
	SegmentSizeUnknown bool

	SeekHead     int64
	Info         int64
	Tracks       int64
	Cues         int64
	Tags         int64
	Chapters     int64
	Attachments  int64
	FirstCluster int64

	LargestVoidOffset int64
	LargestVoidSize   int64
}

// Structure returns a snapshot of the open file's structure record.
func (c *Context) Structure() (StructureInfo, error) {
	if err := c.requireOpen(); err != nil {
		return StructureInfo{}, err
	}
	st := c.nav.struc
	return StructureInfo{
		EBMLVersion:        st.header.version,
		EBMLReadVersion:    st.header.readVersion,
		DocType:            st.header.docType,
		DocTypeVersion:     st.header.docTypeVersion,
		DocTypeReadVersion: st.header.docTypeReadVersion,

		SegmentOffset:      st.segmentOffset,
		SegmentDataOffset:  st.segmentDataOffset,
		SegmentSize:        st.segmentSize,
		SegmentSizeUnknown: st.segmentSizeUnknown,

		SeekHead:     c.nav.topLevelOffset(idSeekHead),
		Info:         c.nav.topLevelOffset(idInfo),
		Tracks:       c.nav.topLevelOffset(idTracks),
		Cues:         c.nav.topLevelOffset(idCues),
		Tags:         c.nav.topLevelOffset(idTags),
		Chapters:     c.nav.topLevelOffset(idChapters),
		Attachments:  c.nav.topLevelOffset(idAttachments),
		FirstCluster: st.firstCluster,

		LargestVoidOffset: st.largestVoid.offset,
		LargestVoidSize:   st.largestVoid.size,
	}, nil
}
