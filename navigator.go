package mkvtag

import (
	"errors"
	"io"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// absent is the sentinel offset denoting a missing top-level element.
// A real file offset is always >= 0 (actually > 0, since byte 0 is
// the EBML header), so -1 is unambiguous.
const absent int64 = -1

// ebmlHeader holds the parsed EBML header fields.
type ebmlHeader struct {
	version            uint64
	readVersion        uint64
	docType            string
	docTypeVersion     uint64
	docTypeReadVersion uint64
}

// voidSpan records a Void element's offset and total size (header
// included), or is the zero value with offset==absent when none has
// been seen.
type voidSpan struct {
	offset int64
	size   int64
}

// cachedPos is the value type of the navigator's bounded position
// cache: a small cache mapping element ID to (offset, size).
type cachedPos struct {
	offset int64
	size   int64
}

const positionCacheCapacity = 32

// structure is the file structure record populated by navigate.
type structure struct {
	header ebmlHeader

	segmentOffset      int64
	segmentSizeOffset  int64 // absolute offset of the Segment's size VINT
	segmentSizeLen     int   // encoded width of that VINT, for in-place patching
	segmentDataOffset  int64
	segmentSize        uint64
	segmentSizeUnknown bool

	seekHead     int64
	info         int64
	tracks       int64
	cues         int64
	tags         int64
	chapters     int64
	attachments  int64
	firstCluster int64

	largestVoid voidSpan
}

// segmentEnd returns the absolute end-of-content offset of the Segment.
func (st *structure) segmentEnd(fileSize int64) int64 {
	if st.segmentSizeUnknown {
		return fileSize
	}
	return st.segmentDataOffset + int64(st.segmentSize)
}

// navigator drives structure discovery and on-demand child lookups.
// It owns the bounded position cache, which a fully eager parser
// would not need.
type navigator struct {
	s     *stream
	log   *zap.Logger
	cache *lru.Cache[uint32, cachedPos]
	struc structure
}

func newNavigator(s *stream, log *zap.Logger) (*navigator, error) {
	cache, err := lru.New[uint32, cachedPos](positionCacheCapacity)
	if err != nil {
		return nil, wrapf(ErrNoMemory, "%v", err)
	}
	n := &navigator{s: s, log: log, cache: cache}
	n.struc = structure{
		seekHead: absent, info: absent, tracks: absent, cues: absent,
		tags: absent, chapters: absent, attachments: absent, firstCluster: absent,
		largestVoid: voidSpan{offset: absent},
	}
	return n, nil
}

// navigate performs the full discovery sequence: validate the EBML
// header, locate Segment, scan its prologue up to the first Cluster,
// then resolve SeekHead entries.
func (n *navigator) navigate() error {
	if _, err := n.s.seek(0, SeekStart); err != nil {
		return err
	}

	h, err := readElementHeader(n.s)
	if err != nil {
		return err
	}
	if h.id != idEBMLHeader {
		return wrapf(ErrNotEBML, "first element ID 0x%X is not EBML", h.id)
	}
	if err := n.parseEBMLHeader(h); err != nil {
		return err
	}
	if n.struc.header.docType != "matroska" && n.struc.header.docType != "webm" {
		return wrapf(ErrNotMKV, "doctype %q", n.struc.header.docType)
	}

	seg, err := readElementHeader(n.s)
	if err != nil {
		return err
	}
	if seg.id != idSegment {
		return wrapf(ErrCorrupt, "expected Segment, got ID 0x%X", seg.id)
	}
	n.struc.segmentOffset = seg.headerOff
	n.struc.segmentSizeOffset = seg.headerOff + int64(seg.idLen)
	n.struc.segmentSizeLen = seg.sizeLen
	n.struc.segmentDataOffset = seg.dataOffset
	n.struc.segmentSize = seg.size
	n.struc.segmentSizeUnknown = seg.sizeUnknown

	if err := n.scanPrologue(); err != nil {
		return err
	}
	if err := n.resolveSeekHead(); err != nil {
		return err
	}
	return nil
}

func (n *navigator) parseEBMLHeader(h header) error {
	end := h.endOffset
	if _, err := n.s.seek(h.dataOffset, SeekStart); err != nil {
		return err
	}
	for n.s.tell() < end {
		child, err := readElementHeader(n.s)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		switch child.id {
		case idEBMLVersion:
			n.struc.header.version, err = readUint(n.s, child)
		case idEBMLReadVersion:
			n.struc.header.readVersion, err = readUint(n.s, child)
		case idEBMLDocType:
			n.struc.header.docType, err = readString(n.s, child)
		case idEBMLDocTypeVersion:
			n.struc.header.docTypeVersion, err = readUint(n.s, child)
		case idEBMLDocTypeReadVersion:
			n.struc.header.docTypeReadVersion, err = readUint(n.s, child)
		default:
			if child.sizeUnknown {
				return wrapf(ErrCorrupt, "EBML header child 0x%X has unknown size", child.id)
			}
		}
		if err != nil {
			return err
		}
		if _, err := n.s.seek(child.endOffset, SeekStart); err != nil {
			return err
		}
	}
	return nil
}

// scanPrologue walks the Segment's children from segmentDataOffset,
// recording top-level offsets and the largest Void, stopping at the
// first Cluster. It dispatches on each child's ID and records
// positions instead of eagerly parsing track/cue/chapter content.
func (n *navigator) scanPrologue() error {
	end := n.struc.segmentEnd(n.s.size())
	if _, err := n.s.seek(n.struc.segmentDataOffset, SeekStart); err != nil {
		return err
	}

	for n.s.tell() < end {
		h, err := readElementHeader(n.s)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}

		if h.id == idCluster {
			n.struc.firstCluster = h.headerOff
			n.log.Debug("prologue scan stopped at first Cluster", zap.Int64("offset", h.headerOff))
			return nil
		}

		if topLevelIDs[h.id] {
			n.recordTopLevel(h.id, h.headerOff, h.totalLen())
		}
		if h.id == idVoid {
			n.noteVoid(h)
		}

		if h.sizeUnknown {
			// An unknown-size element before any Cluster would make the
			// rest of the prologue unreachable; treat it as corrupt.
			return wrapf(ErrCorrupt, "element 0x%X has unknown size before first Cluster", h.id)
		}
		if _, err := n.s.seek(h.endOffset, SeekStart); err != nil {
			return err
		}
	}
	return nil
}

// noteVoid records h as the largest Void seen so far, if it is. Void
// elements are siblings of every other top-level element in the
// prologue scan, so this never needs to reason about overlap with
// Tags or anything else.
func (n *navigator) noteVoid(h header) {
	if total := h.totalLen(); total > n.struc.largestVoid.size {
		n.struc.largestVoid = voidSpan{offset: h.headerOff, size: total}
	}
}

// recordTopLevel stores offset (and, when known, total size) for a
// top-level Segment child both in the structure record and in the
// bounded position cache, which topLevelOffset consults first on
// every later lookup.
func (n *navigator) recordTopLevel(id uint32, offset, size int64) {
	switch id {
	case idSeekHead:
		n.struc.seekHead = offset
	case idInfo:
		n.struc.info = offset
	case idTracks:
		n.struc.tracks = offset
	case idCues:
		n.struc.cues = offset
	case idTags:
		n.struc.tags = offset
	case idChapters:
		n.struc.chapters = offset
	case idAttachments:
		n.struc.attachments = offset
	}
	n.cache.Add(id, cachedPos{offset: offset, size: size})
}

// topLevelOffset returns the current offset of the named top-level
// element, consulting the bounded position cache before falling back
// to the structure record (the cache is warmed by every
// recordTopLevel and by the placement planner's writes, so it holds
// the freshest value whenever one has been written there).
func (n *navigator) topLevelOffset(id uint32) int64 {
	if v, ok := n.cache.Get(id); ok {
		return v.offset
	}
	switch id {
	case idSeekHead:
		return n.struc.seekHead
	case idInfo:
		return n.struc.info
	case idTracks:
		return n.struc.tracks
	case idCues:
		return n.struc.cues
	case idTags:
		return n.struc.tags
	case idChapters:
		return n.struc.chapters
	case idAttachments:
		return n.struc.attachments
	default:
		return absent
	}
}

// resolveSeekHead parses the SeekHead (if any) and overwrites top-level
// slots with its pointers, since those take precedence over the
// prologue scan result for elements that appear after the first
// Cluster. Uses the same Seek/SeekID/SeekPosition parse loop shape
// found in other Go Matroska parsers.
func (n *navigator) resolveSeekHead() error {
	if n.struc.seekHead == absent {
		return nil
	}
	if _, err := n.s.seek(n.struc.seekHead, SeekStart); err != nil {
		return err
	}
	sh, err := readElementHeader(n.s)
	if err != nil {
		return err
	}
	end := sh.endOffset
	if _, err := n.s.seek(sh.dataOffset, SeekStart); err != nil {
		return err
	}

	for n.s.tell() < end {
		seek, err := readElementHeader(n.s)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		if seek.id != idSeek {
			if seek.sizeUnknown {
				return wrapf(ErrCorrupt, "SeekHead child 0x%X has unknown size", seek.id)
			}
			if _, err := n.s.seek(seek.endOffset, SeekStart); err != nil {
				return err
			}
			continue
		}

		seekID, seekPos, err := n.parseSeekEntry(seek)
		if err != nil {
			return err
		}
		if seekID != 0 {
			abs := n.struc.segmentDataOffset + int64(seekPos)
			n.recordTopLevel(seekID, abs, 0)
		}
		if _, err := n.s.seek(seek.endOffset, SeekStart); err != nil {
			return err
		}
	}
	return nil
}

func (n *navigator) parseSeekEntry(seek header) (seekID uint32, seekPos uint64, err error) {
	end := seek.endOffset
	if _, err = n.s.seek(seek.dataOffset, SeekStart); err != nil {
		return
	}
	for n.s.tell() < end {
		child, cerr := readElementHeader(n.s)
		if cerr != nil {
			if errors.Is(cerr, io.EOF) {
				break
			}
			err = cerr
			return
		}
		switch child.id {
		case idSeekID:
			data, rerr := readContentBytes(n.s, child)
			if rerr != nil {
				err = rerr
				return
			}
			seekID = uint32(beUintN(data))
		case idSeekPos:
			var v uint64
			v, err = readUint(n.s, child)
			if err != nil {
				return
			}
			seekPos = v
		}
		if _, serr := n.s.seek(child.endOffset, SeekStart); serr != nil {
			err = serr
			return
		}
	}
	return
}

func beUintN(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = (v << 8) | uint64(c)
	}
	return v
}

// findElement streams the direct children of parent looking for the
// first with the given ID, skipping other children's content. Unlike
// scanPrologue, it never stops at
// Clusters that aren't the target, since parent is a specific master,
// not the Segment itself.
func findElement(s *stream, parent header, targetID uint32) (header, bool, error) {
	if _, err := s.seek(parent.dataOffset, SeekStart); err != nil {
		return header{}, false, err
	}
	for s.tell() < parent.endOffset {
		h, err := readElementHeader(s)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return header{}, false, err
		}
		if h.id == targetID {
			return h, true, nil
		}
		if h.sizeUnknown {
			return header{}, false, wrapf(ErrCorrupt, "nested element 0x%X has unknown size", h.id)
		}
		if _, err := s.seek(h.endOffset, SeekStart); err != nil {
			return header{}, false, err
		}
	}
	return header{}, false, nil
}
