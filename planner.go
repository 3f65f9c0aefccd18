package mkvtag

import "go.uber.org/zap"

// Placement planner. Given a freshly encoded Tags element, choose the
// cheapest of three write strategies and apply it, patching the
// SeekHead whenever the Tags element moves (largest-void and append)
// and the Segment size only for append. The control-flow shape (try strategy 1, fall
// through to 2, fall through to 3) follows the same
// try-then-fall-through dispatch used elsewhere in this package when
// walking sibling elements by ID.

type placementStrategy int

const (
	strategyInPlace placementStrategy = iota
	strategyLargestVoid
	strategyAppend
)

func (s placementStrategy) String() string {
	switch s {
	case strategyInPlace:
		return "in-place"
	case strategyLargestVoid:
		return "largest-void"
	case strategyAppend:
		return "append"
	default:
		return "unknown"
	}
}

// writeTags encodes collection and writes it back using the cheapest
// viable placement strategy, then updates the SeekHead's Tags pointer
// if one exists and the Tags element actually moved.
func writeTags(s *stream, nav *navigator, collection *Collection, log *zap.Logger) error {
	payload, err := collection.encode()
	if err != nil {
		return err
	}

	oldTagsHeader, hadOldTags, err := loadOldTags(s, nav)
	if err != nil {
		return err
	}

	if hadOldTags {
		if ok, err := tryInPlace(s, nav, oldTagsHeader, payload, log); err != nil {
			return err
		} else if ok {
			nav.recordTopLevel(idTags, oldTagsHeader.headerOff, int64(len(payload)))
			return nil
		}
	}

	if ok, newOffset, err := tryLargestVoid(s, nav, payload, log); err != nil {
		return err
	} else if ok {
		if hadOldTags {
			if err := voidOutRegion(s, oldTagsHeader.headerOff, oldTagsHeader.totalLen()); err != nil {
				return err
			}
		}
		nav.recordTopLevel(idTags, newOffset, int64(len(payload)))
		return updateSeekHeadPointer(s, nav, newOffset, log)
	}

	newOffset, err := appendAtEnd(s, nav, payload, log)
	if err != nil {
		return err
	}
	if hadOldTags {
		if err := voidOutRegion(s, oldTagsHeader.headerOff, oldTagsHeader.totalLen()); err != nil {
			return err
		}
	}
	nav.recordTopLevel(idTags, newOffset, int64(len(payload)))
	return updateSeekHeadPointer(s, nav, newOffset, log)
}

func loadOldTags(s *stream, nav *navigator) (header, bool, error) {
	offset := nav.topLevelOffset(idTags)
	if offset == absent {
		return header{}, false, nil
	}
	if _, err := s.seek(offset, SeekStart); err != nil {
		return header{}, false, err
	}
	h, err := readElementHeader(s)
	if err != nil {
		return header{}, false, err
	}
	return h, true, nil
}

// tryInPlace overwrites the existing Tags element (and, if present, an
// immediately following Void) when the new payload fits in that
// combined span.
func tryInPlace(s *stream, nav *navigator, old header, payload []byte, log *zap.Logger) (bool, error) {
	span := old.totalLen()

	if _, err := s.seek(old.endOffset, SeekStart); err == nil {
		if followH, err := peekElementHeader(s); err == nil && followH.id == idVoid && !followH.sizeUnknown {
			span += followH.totalLen()
		}
	}

	if int64(len(payload)) > span {
		return false, nil
	}

	log.Debug("placement strategy chosen", zap.Stringer("strategy", strategyInPlace),
		zap.Int64("span", span), zap.Int("payload", len(payload)))
	if err := s.writeAt(old.headerOff, payload); err != nil {
		return false, err
	}
	return true, padRegion(s, old.headerOff+int64(len(payload)), span-int64(len(payload)))
}

// tryLargestVoid drops the payload into the largest Void recorded
// during the prologue scan, if any and if it is large enough.
func tryLargestVoid(s *stream, nav *navigator, payload []byte, log *zap.Logger) (bool, int64, error) {
	v := nav.struc.largestVoid
	if v.offset == absent || v.size < int64(len(payload)) {
		return false, 0, nil
	}
	log.Debug("placement strategy chosen", zap.Stringer("strategy", strategyLargestVoid),
		zap.Int64("offset", v.offset), zap.Int64("size", v.size))
	if err := s.writeAt(v.offset, payload); err != nil {
		return false, 0, err
	}
	if err := padRegion(s, v.offset+int64(len(payload)), v.size-int64(len(payload))); err != nil {
		return false, 0, err
	}
	return true, v.offset, nil
}

// appendAtEnd appends the payload past the end of the file, growing
// the Segment (patching its size VINT in place when the size is
// known). The grown size is checked against the existing VINT width
// before anything is written.
func appendAtEnd(s *stream, nav *navigator, payload []byte, log *zap.Logger) (int64, error) {
	offset := s.size()
	var newSize uint64
	var sizeBuf []byte
	if !nav.struc.segmentSizeUnknown {
		newSize = nav.struc.segmentSize + uint64(len(payload))
		buf, ok := encodeVintFixed(newSize, nav.struc.segmentSizeLen, nil)
		if !ok {
			log.Warn("segment grew past the original size VINT width; append rejected",
				zap.Uint64("newSize", newSize))
			return 0, wrapf(ErrNoSpace, "new Segment size %d does not fit the existing %d-byte size VINT", newSize, nav.struc.segmentSizeLen)
		}
		sizeBuf = buf
	}

	log.Debug("placement strategy chosen", zap.Stringer("strategy", strategyAppend),
		zap.Int64("offset", offset), zap.Int("payload", len(payload)))
	if _, err := s.seek(offset, SeekStart); err != nil {
		return 0, err
	}
	if err := s.write(payload); err != nil {
		return 0, err
	}

	if sizeBuf != nil {
		if err := s.writeAt(nav.struc.segmentSizeOffset, sizeBuf); err != nil {
			return 0, err
		}
		nav.struc.segmentSize = newSize
	}
	return offset, nil
}

// padRegion fills [offset, offset+remaining) with a Void element, or a
// single zero byte when remaining==1: a 1-byte remainder can't hold a
// valid Void ID+size pair, so it is zero-filled rather than left
// uninitialized.
func padRegion(s *stream, offset, remaining int64) error {
	if remaining == 0 {
		return nil
	}
	if remaining == 1 {
		return s.writeAt(offset, []byte{0})
	}
	buf, err := appendVoid(nil, int(remaining))
	if err != nil {
		return err
	}
	return s.writeAt(offset, buf)
}

// voidOutRegion overwrites a now-stale element span (the old Tags
// element after it has moved) with a Void of the same total size, so
// the file stays structurally valid without a second write pass.
func voidOutRegion(s *stream, offset, total int64) error {
	return padRegion(s, offset, total)
}

// updateSeekHeadPointer patches the SeekHead's Tags entry to point at
// newOffset, in place, if a SeekHead and a Tags Seek entry both exist
// and the new relative position still fits the entry's original VINT
// width. It never creates a SeekHead or a Seek entry that wasn't
// already there — a file without one keeps relying on the navigator's
// own prologue scan, which finds Tags only when it lies before the
// first Cluster.
func updateSeekHeadPointer(s *stream, nav *navigator, newOffset int64, log *zap.Logger) error {
	seekHeadOffset := nav.topLevelOffset(idSeekHead)
	if seekHeadOffset == absent {
		log.Debug("no SeekHead present; skipping index update")
		return nil
	}
	if _, err := s.seek(seekHeadOffset, SeekStart); err != nil {
		return err
	}
	sh, err := readElementHeader(s)
	if err != nil {
		return err
	}
	posHeader, found, err := findTagsSeekPosition(s, sh)
	if err != nil {
		return err
	}
	if !found {
		log.Debug("SeekHead has no Tags entry; skipping index update")
		return nil
	}

	relative := uint64(newOffset - nav.struc.segmentDataOffset)
	content, ok := fixedWidthUint(relative, int(posHeader.size))
	if !ok {
		log.Warn("new Tags position does not fit the existing SeekPosition width; leaving SeekHead stale",
			zap.Int64("newOffset", newOffset))
		return nil
	}
	return s.writeAt(posHeader.dataOffset, content)
}

// fixedWidthUint encodes v as a fixed-width big-endian unsigned
// integer (the content of a SeekPosition element, which is a plain
// uint, not a VINT), returning false if v does not fit in width bytes.
func fixedWidthUint(v uint64, width int) ([]byte, bool) {
	if width <= 0 || width > 8 {
		return nil, false
	}
	if width < 8 && v >= uint64(1)<<uint(8*width) {
		return nil, false
	}
	buf := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	return buf, true
}

// findTagsSeekPosition scans sh's Seek children for the one whose
// SeekID matches Tags, returning the header of its SeekPosition child
// (size = its current encoded width, for width-compatibility checks).
func findTagsSeekPosition(s *stream, sh header) (header, bool, error) {
	if _, err := s.seek(sh.dataOffset, SeekStart); err != nil {
		return header{}, false, err
	}
	for s.tell() < sh.endOffset {
		seek, err := readElementHeader(s)
		if err != nil {
			return header{}, false, err
		}
		if seek.id != idSeek {
			if _, err := s.seek(seek.endOffset, SeekStart); err != nil {
				return header{}, false, err
			}
			continue
		}

		var idMatches bool
		var posHeader header
		var havePos bool
		if _, err := s.seek(seek.dataOffset, SeekStart); err != nil {
			return header{}, false, err
		}
		for s.tell() < seek.endOffset {
			child, err := readElementHeader(s)
			if err != nil {
				return header{}, false, err
			}
			switch child.id {
			case idSeekID:
				data, err := readContentBytes(s, child)
				if err != nil {
					return header{}, false, err
				}
				idMatches = uint32(beUintN(data)) == idTags
			case idSeekPos:
				posHeader = child
				havePos = true
			}
			if _, err := s.seek(child.endOffset, SeekStart); err != nil {
				return header{}, false, err
			}
		}
		if idMatches && havePos {
			return posHeader, true, nil
		}
		if _, err := s.seek(seek.endOffset, SeekStart); err != nil {
			return header{}, false, err
		}
	}
	return header{}, false, nil
}
