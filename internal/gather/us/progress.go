package us

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const progressFile = ".gathered"

// progressTracker remembers, per symbol, the last end date whose bars were
// stored, so a repeated run for the same day skips finished symbols.
type progressTracker struct {
	mu   sync.Mutex
	path string
	done map[string]string // symbol -> YYYY-MM-DD
}

// newProgressTracker loads <dir>/.gathered, creating dir if needed.
func newProgressTracker(dir string) (*progressTracker, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}
	pt := &progressTracker{
		path: filepath.Join(dir, progressFile),
		done: make(map[string]string),
	}

	f, err := os.Open(pt.path)
	if os.IsNotExist(err) {
		return pt, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", progressFile, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		sym, date, ok := strings.Cut(strings.TrimSpace(sc.Text()), " ")
		if ok && sym != "" {
			pt.done[sym] = date
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", progressFile, err)
	}
	return pt, nil
}

// IsCompleted reports whether symbol was gathered through date or later.
func (p *progressTracker) IsCompleted(symbol, date string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	last, ok := p.done[symbol]
	return ok && last >= date
}

// MarkCompleted records symbols as gathered through date and rewrites the
// state file atomically.
func (p *progressTracker) MarkCompleted(symbols []string, date string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range symbols {
		p.done[s] = date
	}

	syms := make([]string, 0, len(p.done))
	for s := range p.done {
		syms = append(syms, s)
	}
	sort.Strings(syms)
	var b strings.Builder
	for _, s := range syms {
		fmt.Fprintf(&b, "%s %s\n", s, p.done[s])
	}

	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", progressFile, err)
	}
	return os.Rename(tmp, p.path)
}
