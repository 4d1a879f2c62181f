package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"

	"grimm.is/warden/internal/logging"
	"grimm.is/warden/internal/paths"
)

// fileMode keeps the audit trail owner-readable only.
const fileMode = 0o600

// Log appends events to a JSON-lines file through a single writer
// goroutine, so concurrent callers never interleave lines and the caller
// never waits on disk.
type Log struct {
	// Path overrides the default audit log location. Empty means
	// paths.AuditLogPath().
	path string

	ch   chan Event
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool

	debug *logging.Logger
}

// NewLog returns a log writing to the standard audit file.
func NewLog() *Log {
	return NewLogAt(paths.AuditLogPath())
}

// NewLogAt returns a log writing to an explicit path.
func NewLogAt(path string) *Log {
	l := &Log{
		path:  path,
		ch:    make(chan Event, 64),
		debug: logging.Default().WithComponent("audit"),
	}
	l.wg.Add(1)
	go l.writer()
	return l
}

// Path returns the file this log appends to.
func (l *Log) Path() string {
	return l.path
}

// Record queues an event for appending. It never blocks on disk and never
// reports failure: audit I/O must not deny service.
func (l *Log) Record(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.ch <- e
}

// Close drains the queue and stops the writer. Safe to call twice.
func (l *Log) Close() {
	l.once.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.ch)
		l.mu.Unlock()
		l.wg.Wait()
	})
}

func (l *Log) writer() {
	defer l.wg.Done()
	for e := range l.ch {
		l.append(e)
	}
}

// append opens, writes one line, fsyncs, closes. Opening per append keeps
// the file descriptor from pinning a rotated or deleted file.
func (l *Log) append(e Event) {
	line, err := json.Marshal(e)
	if err != nil {
		l.debug.Warn("failed to encode audit event", "error", err)
		return
	}

	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, fileMode)
	if err != nil {
		l.debug.Warn("failed to open audit log", "path", l.path, "error", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		l.debug.Warn("failed to append audit event", "error", err)
		return
	}
	if err := f.Sync(); err != nil {
		l.debug.Warn("failed to sync audit log", "error", err)
	}
}

// ReadRecent returns up to count events, newest first. Unparseable lines
// are skipped.
func ReadRecent(path string, count int) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if scanner.Text() != "" {
			lines = append(lines, scanner.Text())
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	events := make([]Event, 0, count)
	for i := len(lines) - 1; i >= 0 && len(events) < count; i-- {
		var e Event
		if err := json.Unmarshal([]byte(lines[i]), &e); err != nil {
			continue
		}
		events = append(events, e)
	}
	return events, nil
}
