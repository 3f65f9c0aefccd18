package mkvtag

// header is a parsed EBML element frame: ID and size VINTs plus the
// derived content-start/content-end offsets. Content is read lazily
// by the typed codec in content.go once a caller decides it wants it,
// rather than eagerly copied into the header itself.
type header struct {
	id          uint32
	size        uint64
	sizeUnknown bool
	idLen       int
	sizeLen     int
	headerOff   int64 // absolute offset of the first ID byte
	dataOffset  int64 // absolute offset of the first content byte
	endOffset   int64 // dataOffset + size, or EOF if sizeUnknown
}

// totalLen returns the header+content length, valid only when the size
// is known.
func (h header) totalLen() int64 {
	return h.endOffset - h.headerOff
}

// readElementHeader reads one element header at the stream's current
// position, keeping the derived offsets the planner needs for
// in-place patching instead of just (id, size).
func readElementHeader(s *stream) (header, error) {
	var h header
	h.headerOff = s.tell()

	var first [1]byte
	if err := s.readExact(first[:]); err != nil {
		return h, err
	}
	idLen := vintLength(first[0])
	if idLen == 0 || idLen > 4 {
		return h, wrapf(ErrInvalidVint, "bad ID length marker 0x%02X", first[0])
	}
	idBuf := make([]byte, idLen)
	idBuf[0] = first[0]
	if err := s.readExact(idBuf[1:]); err != nil {
		return h, err
	}
	id, _, ok := decodeID(idBuf)
	if !ok {
		return h, wrapf(ErrInvalidVint, "bad element ID")
	}
	h.id = id
	h.idLen = idLen

	var szFirst [1]byte
	if err := s.readExact(szFirst[:]); err != nil {
		return h, err
	}
	sizeLen := vintLength(szFirst[0])
	if sizeLen == 0 || sizeLen > 8 {
		return h, wrapf(ErrInvalidVint, "bad size length marker 0x%02X", szFirst[0])
	}
	szBuf := make([]byte, sizeLen)
	szBuf[0] = szFirst[0]
	if err := s.readExact(szBuf[1:]); err != nil {
		return h, err
	}
	size, _, ok := decodeVint(szBuf, false)
	if !ok {
		return h, wrapf(ErrInvalidVint, "bad element size")
	}
	h.sizeLen = sizeLen
	h.dataOffset = s.tell()

	if vintIsUnknown(size, sizeLen) {
		h.sizeUnknown = true
		h.endOffset = s.size()
	} else {
		h.size = size
		h.endOffset = h.dataOffset + int64(size)
	}
	return h, nil
}

// peekElementHeader reads a header without advancing the stream.
func peekElementHeader(s *stream) (header, error) {
	pos := s.tell()
	h, err := readElementHeader(s)
	if _, seekErr := s.seek(pos, SeekStart); seekErr != nil && err == nil {
		err = seekErr
	}
	return h, err
}

// skipElement seeks past h's content. It refuses on an unknown-size
// element, since there is no declared end to skip to.
func skipElement(s *stream, h header) error {
	if h.sizeUnknown {
		return wrapf(ErrInvalidArg, "cannot skip an unknown-size element")
	}
	_, err := s.seek(h.endOffset, SeekStart)
	return err
}

// atElementEnd reports whether the stream has reached or passed the end
// of parent.
func atElementEnd(s *stream, parent header) bool {
	return s.tell() >= parent.endOffset
}

// headerEncodedLen returns the byte length of id+size as they would be
// re-encoded at minimum width.
func headerEncodedLen(id uint32, contentLen int) int {
	return idByteLen(uint64(id)) + vintSize(uint64(contentLen))
}
