package mkvtag

import (
	"errors"
	"io"
	"os"
)

// bufferSize is the internal read-buffer size.
const bufferSize = 8 * 1024

// Whence mirrors io.Seek* but is spelled out in the package's own
// vocabulary.
type Whence int

// Seek origins.
const (
	SeekStart   Whence = Whence(io.SeekStart)
	SeekCurrent Whence = Whence(io.SeekCurrent)
	SeekEnd     Whence = Whence(io.SeekEnd)
)

// stream is a seekable byte stream with an internal read buffer and
// lazy seek coalescing. It wraps an *os.File; other io.ReadWriteSeeker
// implementations such as an in-memory buffer are not accepted, so the
// tests drive it over temporary files.
type stream struct {
	f        *os.File
	writable bool

	filePos  int64 // true descriptor position
	fileSize int64

	bufOffset int64 // absolute file position of buf[0]
	buf       [bufferSize]byte
	bufLen    int
	bufPos    int
}

// openRead opens path read-only.
func openRead(path string) (*stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wrapf(ErrIO, "open %s: %v", path, err)
	}
	return newStream(f, false)
}

// openRW opens path for reading and writing; it must already exist.
func openRW(path string) (*stream, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, wrapf(ErrIO, "open %s: %v", path, err)
	}
	return newStream(f, true)
}

func newStream(f *os.File, writable bool) (*stream, error) {
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, wrapf(ErrIO, "stat: %v", err)
	}
	return &stream{f: f, writable: writable, fileSize: fi.Size()}, nil
}

func (s *stream) close() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	if err != nil {
		return wrapf(ErrIO, "close: %v", err)
	}
	return nil
}

func (s *stream) isWritable() bool { return s.writable }

func (s *stream) size() int64 { return s.fileSize }

// tell returns the logical position: bufOffset + bufPos when the buffer
// is valid, otherwise the true descriptor position.
func (s *stream) tell() int64 {
	if s.bufLen > 0 {
		return s.bufOffset + int64(s.bufPos)
	}
	return s.filePos
}

// seek implements the buffered seek policy: a target inside the
// current buffer only moves bufPos; anything else invalidates the
// buffer and the next read issues a real seek lazily.
func (s *stream) seek(offset int64, whence Whence) (int64, error) {
	var target int64
	switch whence {
	case SeekStart:
		target = offset
	case SeekCurrent:
		target = s.tell() + offset
	case SeekEnd:
		target = s.fileSize + offset
	default:
		return 0, wrapf(ErrInvalidArg, "invalid whence %d", whence)
	}
	if target < 0 {
		return 0, wrapf(ErrSeekFailed, "negative seek target %d", target)
	}

	if s.bufLen > 0 && target >= s.bufOffset && target <= s.bufOffset+int64(s.bufLen) {
		s.bufPos = int(target - s.bufOffset)
		return target, nil
	}

	s.invalidateBuffer()
	s.filePos = target
	return target, nil
}

func (s *stream) invalidateBuffer() {
	s.bufLen = 0
	s.bufPos = 0
}

// realign issues the real seek syscall needed to make the descriptor
// position match the logical position, if it hasn't been issued yet.
func (s *stream) realign() error {
	if s.bufLen > 0 {
		s.filePos = s.bufOffset + int64(s.bufPos)
		s.invalidateBuffer()
	}
	if _, err := s.f.Seek(s.filePos, io.SeekStart); err != nil {
		return wrapf(ErrSeekFailed, "%v", err)
	}
	return nil
}

// fill refills the internal buffer starting at the current logical
// position, issuing a real seek first if one is pending.
func (s *stream) fill() error {
	if err := s.realign(); err != nil {
		return err
	}
	n, err := io.ReadFull(s.f, s.buf[:])
	switch {
	case err == nil, errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		// Partial fill at EOF is expected; n holds the valid byte count.
	default:
		return wrapf(ErrIO, "%v", err)
	}
	s.bufOffset = s.filePos
	s.bufLen = n
	s.bufPos = 0
	s.filePos += int64(n)
	return nil
}

// read copies up to len(p) bytes into p, returning the number read
// (possibly 0 < n < len(p) at EOF, per io.Reader semantics).
func (s *stream) read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	total := 0
	for total < len(p) {
		if s.bufPos >= s.bufLen {
			if err := s.fill(); err != nil {
				return total, err
			}
			if s.bufLen == 0 {
				if total > 0 {
					return total, nil
				}
				return 0, io.EOF
			}
		}
		n := copy(p[total:], s.buf[s.bufPos:s.bufLen])
		s.bufPos += n
		total += n
	}
	return total, nil
}

// readExact reads exactly len(p) bytes. A clean EOF with nothing read
// at all is returned as io.EOF so callers parsing a sequence of
// sibling elements can distinguish "nothing left to read" from a
// truncated element; anything else short of len(p) is ErrTruncated.
func (s *stream) readExact(p []byte) error {
	n, err := s.read(p)
	if err != nil && errors.Is(err, io.EOF) && n == 0 {
		return io.EOF
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if n != len(p) {
		return wrapf(ErrTruncated, "wanted %d bytes, got %d", len(p), n)
	}
	return nil
}

// peek reads len(p) bytes without advancing the logical position.
func (s *stream) peek(p []byte) error {
	pos := s.tell()
	err := s.readExact(p)
	if _, seekErr := s.seek(pos, SeekStart); seekErr != nil && err == nil {
		err = seekErr
	}
	return err
}

func (s *stream) readByte() (byte, error) {
	var b [1]byte
	if err := s.readExact(b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// write realigns the descriptor to the logical position, invalidates
// the read buffer, and writes p in full, looping on short writes.
// fileSize grows if the write extends past the previous end of file.
func (s *stream) write(p []byte) error {
	if !s.writable {
		return ErrReadOnly
	}
	if err := s.realign(); err != nil {
		return err
	}
	for len(p) > 0 {
		n, err := s.f.Write(p)
		if err != nil {
			return wrapf(ErrWriteFailed, "%v", err)
		}
		p = p[n:]
		s.filePos += int64(n)
	}
	if s.filePos > s.fileSize {
		s.fileSize = s.filePos
	}
	return nil
}

// writeAt writes p at the given absolute offset, restoring the prior
// logical position afterwards (used by the planner to patch in-place
// slots without disturbing the caller's cursor).
func (s *stream) writeAt(offset int64, p []byte) error {
	saved := s.tell()
	if _, err := s.seek(offset, SeekStart); err != nil {
		return err
	}
	if err := s.write(p); err != nil {
		return err
	}
	_, err := s.seek(saved, SeekStart)
	return err
}

// flush issues a durability barrier.
func (s *stream) flush() error {
	if s.f == nil {
		return nil
	}
	if err := s.f.Sync(); err != nil {
		return wrapf(ErrIO, "sync: %v", err)
	}
	return nil
}
