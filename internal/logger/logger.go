package logger

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/European-XFEL/FunctionGenerator/internal/device"
	"github.com/European-XFEL/FunctionGenerator/internal/schema"
)

// Logger records timestamped parameter snapshots to CSV files with automatic
// rotation. One column per polled parameter, derived from the schema.
type Logger struct {
	mu       sync.Mutex
	dir      string
	interval time.Duration
	enabled  bool
	prefix   string
	header   []string

	file   *os.File
	writer *csv.Writer
	lastTs time.Time
	rows   int
}

// Config holds logger configuration.
type Config struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	Path       string `yaml:"path" json:"path"`
	IntervalMs int    `yaml:"interval_ms" json:"intervalMs"`
}

const (
	maxRowsPerFile = 100_000 // Rotate after 100k rows
)

// New creates a Logger for the given schema. Columns are the polled
// parameter IDs in sorted order so files from the same model line up.
func New(cfg Config, sch *schema.Schema) *Logger {
	if cfg.Path == "" {
		cfg.Path = "./log"
	}
	interval := time.Duration(cfg.IntervalMs) * time.Millisecond
	if interval < 50*time.Millisecond {
		interval = time.Second
	}

	header := []string{"timestamp"}
	var cols []string
	for _, b := range sch.PollBindings() {
		cols = append(cols, b.ID())
	}
	sort.Strings(cols)
	header = append(header, cols...)

	return &Logger{
		dir:      cfg.Path,
		interval: interval,
		enabled:  cfg.Enabled,
		prefix:   sch.Model,
		header:   header,
	}
}

// SetEnabled allows toggling logging at runtime.
func (l *Logger) SetEnabled(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = on
	if !on && l.file != nil {
		l.closeFile()
	}
}

// IsEnabled returns whether logging is active.
func (l *Logger) IsEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// Header returns the column names, timestamp first.
func (l *Logger) Header() []string {
	return append([]string(nil), l.header...)
}

// Record writes a snapshot if the minimum interval has elapsed. values is
// keyed by parameter ID as returned by Device.Values.
func (l *Logger) Record(values map[string]device.ParamValue) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return
	}

	now := time.Now()
	if now.Sub(l.lastTs) < l.interval {
		return
	}
	l.lastTs = now

	// Open/rotate file if needed
	if l.writer == nil || l.rows >= maxRowsPerFile {
		if err := l.rotateFile(now); err != nil {
			log.Printf("[logger] rotate failed: %v", err)
			return
		}
	}

	row := l.buildRow(now, values)
	if err := l.writer.Write(row); err != nil {
		log.Printf("[logger] write failed: %v", err)
		return
	}
	l.writer.Flush()
	l.rows++
}

// Close flushes and closes the current log file.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeFile()
}

func (l *Logger) rotateFile(now time.Time) error {
	l.closeFile()

	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", l.dir, err)
	}

	filename := fmt.Sprintf("%s_%s.csv", l.prefix, now.Format("2006-01-02_150405"))
	path := filepath.Join(l.dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	l.file = f
	l.writer = csv.NewWriter(f)
	l.rows = 0

	if err := l.writer.Write(l.header); err != nil {
		return err
	}
	l.writer.Flush()

	log.Printf("[logger] opened %s", path)
	return nil
}

func (l *Logger) closeFile() {
	if l.writer != nil {
		l.writer.Flush()
		l.writer = nil
	}
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}

func (l *Logger) buildRow(ts time.Time, values map[string]device.ParamValue) []string {
	row := make([]string, len(l.header))
	row[0] = ts.Format(time.RFC3339Nano)
	for i, col := range l.header[1:] {
		if v, ok := values[col]; ok {
			row[i+1] = v.Text
		}
	}
	return row
}
