package wal

import (
	"bufio"
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// FileName is the log file created inside the data directory
const FileName = "tpc.log"

// headerSize is kind(1) + payload length(4) + crc32(4)
const headerSize = 9

// maxPayload bounds a single record so a corrupt length cannot force a huge read
const maxPayload = 1 << 20

// ErrRecordTooLarge is returned when appending a payload above maxPayload
var ErrRecordTooLarge = errors.New("wal record too large")

// TransactionLog is the append-only write-ahead log used by participants
type TransactionLog interface {
	// Append durably writes rec at the end of the log
	Append(rec Record) error

	// Iterate calls fn for every record from the start of the log, stopping
	// at the first error fn returns
	Iterate(fn func(Record) error) error

	// Truncate drops every record
	Truncate() error

	// Len returns the number of records in the log
	Len() int

	// Close releases the underlying file
	Close() error
}

// FileLog stores records in a single append-only file. Each record is
//
//	[kind:1][len:4 big-endian][crc32(payload):4][payload:len]
//
// A torn or corrupt tail (crash mid-append) ends iteration and is cut off
// on open, so the log always holds only complete records.
type FileLog struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	count  int
	logger *log.Entry
}

// Open opens or creates the log file under dir
func Open(dir string) (*FileLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create wal dir %s", dir)
	}
	path := filepath.Join(dir, FileName)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open wal %s", path)
	}

	l := &FileLog{
		path:   path,
		file:   f,
		logger: log.WithField("wal", path),
	}
	count, end, err := l.scan(nil)
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := l.cutTail(end); err != nil {
		f.Close()
		return nil, err
	}
	l.count = count
	return l, nil
}

// Append writes rec and fsyncs the file
func (l *FileLog) Append(rec Record) error {
	if len(rec.Data) > maxPayload {
		return ErrRecordTooLarge
	}
	buf := make([]byte, headerSize+len(rec.Data))
	buf[0] = byte(rec.Kind)
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(rec.Data)))
	binary.BigEndian.PutUint32(buf[5:9], crc32.ChecksumIEEE(rec.Data))
	copy(buf[headerSize:], rec.Data)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.Seek(0, io.SeekEnd); err != nil {
		return errors.Wrap(err, "seek wal end")
	}
	if _, err := l.file.Write(buf); err != nil {
		return errors.Wrap(err, "append wal record")
	}
	if err := l.file.Sync(); err != nil {
		return errors.Wrap(err, "sync wal")
	}
	l.count++
	return nil
}

// Iterate replays records in append order
func (l *FileLog) Iterate(fn func(Record) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, _, err := l.scan(fn)
	return err
}

// Truncate empties the log
func (l *FileLog) Truncate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.file.Truncate(0); err != nil {
		return errors.Wrap(err, "truncate wal")
	}
	if err := l.file.Sync(); err != nil {
		return errors.Wrap(err, "sync wal")
	}
	l.count = 0
	return nil
}

// Len returns the number of complete records
func (l *FileLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Close closes the log file
func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return errors.Wrap(l.file.Close(), "close wal")
}

// scan reads complete records from the start, passing each to fn when fn is
// non-nil. It returns the record count and the offset just past the last
// complete record. Caller holds l.mu (or owns l exclusively).
func (l *FileLog) scan(fn func(Record) error) (int, int64, error) {
	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return 0, 0, errors.Wrap(err, "seek wal start")
	}
	r := bufio.NewReader(l.file)

	var (
		count  int
		offset int64
		header [headerSize]byte
	)
	for {
		if _, err := io.ReadFull(r, header[:]); err != nil {
			if err != io.EOF {
				l.logger.WithField("offset", offset).Warn("torn wal header")
			}
			return count, offset, nil
		}
		n := binary.BigEndian.Uint32(header[1:5])
		if n > maxPayload {
			l.logger.WithField("offset", offset).Warn("corrupt wal length")
			return count, offset, nil
		}
		data := make([]byte, n)
		if _, err := io.ReadFull(r, data); err != nil {
			l.logger.WithField("offset", offset).Warn("torn wal payload")
			return count, offset, nil
		}
		if crc32.ChecksumIEEE(data) != binary.BigEndian.Uint32(header[5:9]) {
			l.logger.WithField("offset", offset).Warn("wal checksum mismatch")
			return count, offset, nil
		}
		if n == 0 {
			data = nil
		}

		if fn != nil {
			if err := fn(Record{Kind: Kind(header[0]), Data: data}); err != nil {
				return count, offset, err
			}
		}
		count++
		offset += int64(headerSize) + int64(n)
	}
}

// cutTail drops bytes after the last complete record
func (l *FileLog) cutTail(end int64) error {
	info, err := l.file.Stat()
	if err != nil {
		return errors.Wrap(err, "stat wal")
	}
	if info.Size() == end {
		return nil
	}
	l.logger.WithField("bytes", info.Size()-end).Warn("dropping incomplete wal tail")
	return errors.Wrap(l.file.Truncate(end), "cut wal tail")
}
