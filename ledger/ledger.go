package ledger

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Record is one known-good (path, digest) pair. The digest is the hex
// text of a fixed-length content hash; the path is relative to the
// backup root, byte-exact and case-sensitive.
type Record struct {
	Digest string
	Path   string
}

func ParseRecord(line string) (Record, error) {
	fields := strings.SplitN(line, " ", 2)
	if len(fields) != 2 || fields[0] == "" || fields[1] == "" {
		return Record{}, fmt.Errorf("malformed ledger record: %q", line)
	}
	for _, c := range fields[0] {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return Record{}, fmt.Errorf("malformed digest in ledger record: %q", line)
		}
	}
	return Record{Digest: fields[0], Path: fields[1]}, nil
}

func (r Record) String() string {
	return r.Digest + " " + r.Path
}

// Ledger is an ordered list of records, oldest-verified first. It is a
// FIFO verification queue: records are popped off the head for
// reverification and pushed back on the tail, and brand-new records are
// appended at the tail.
type Ledger struct {
	records []Record
	byPath  map[string]int
}

func New() *Ledger {
	return &Ledger{byPath: make(map[string]int)}
}

// Load reads a ledger file. A missing file yields an empty ledger: the
// first run starts from nothing. Blank lines are dropped rather than
// rejected; in-place append strategies have been seen to leave them
// behind.
func Load(pathname string) (*Ledger, error) {
	l := New()

	fp, err := os.Open(pathname)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, err
	}
	defer fp.Close()

	scanner := bufio.NewScanner(fp)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		record, err := ParseRecord(line)
		if err != nil {
			return nil, err
		}
		if err := l.Append(record); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) Len() int {
	return len(l.records)
}

func (l *Ledger) Has(path string) bool {
	_, exists := l.byPath[path]
	return exists
}

func (l *Ledger) Lookup(path string) (Record, bool) {
	idx, exists := l.byPath[path]
	if !exists {
		return Record{}, false
	}
	return l.records[idx], true
}

// Append pushes a record on the tail. At most one record may exist per
// path.
func (l *Ledger) Append(record Record) error {
	if record.Digest == "" || record.Path == "" {
		return fmt.Errorf("refusing to append blank ledger record")
	}
	if _, exists := l.byPath[record.Path]; exists {
		return fmt.Errorf("duplicate ledger record for %s", record.Path)
	}
	l.byPath[record.Path] = len(l.records)
	l.records = append(l.records, record)
	return nil
}

// PopFront removes and returns the n oldest records. Fewer than n are
// returned when the ledger is shorter than n.
func (l *Ledger) PopFront(n int) []Record {
	if n > len(l.records) {
		n = len(l.records)
	}
	if n <= 0 {
		return nil
	}
	window := make([]Record, n)
	copy(window, l.records[:n])
	l.records = l.records[n:]
	for _, record := range window {
		delete(l.byPath, record.Path)
	}
	for i, record := range l.records {
		l.byPath[record.Path] = i
	}
	return window
}

func (l *Ledger) Records() []Record {
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

func (l *Ledger) Head() (Record, bool) {
	if len(l.records) == 0 {
		return Record{}, false
	}
	return l.records[0], true
}

func (l *Ledger) Tail() (Record, bool) {
	if len(l.records) == 0 {
		return Record{}, false
	}
	return l.records[len(l.records)-1], true
}

// Save rewrites the ledger atomically: write to a temporary file in the
// same directory, then rename over the target. A crashed run leaves the
// previous ledger intact.
func (l *Ledger) Save(pathname string) error {
	tmp, err := os.CreateTemp(filepath.Dir(pathname), filepath.Base(pathname)+".tmp-")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	writer := bufio.NewWriter(tmp)
	for _, record := range l.records {
		if _, err := fmt.Fprintln(writer, record.String()); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := writer.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), pathname)
}
