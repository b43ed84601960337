// Package hostsfile owns the managed region of the system hosts table.
// Everything between the two marker lines belongs to the daemon; every
// byte outside them is preserved untouched.
package hostsfile

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dzli1/blocking/internal/blocker/common/log"
	"github.com/dzli1/blocking/internal/blocker/domain"
	"github.com/dzli1/blocking/internal/blocker/services/engine"
)

// Marker lines delimiting the managed region. These exact strings are
// shared with earlier builds, so existing tables keep being recognized.
const (
	markerStart = "# === SITE BLOCKER START ==="
	markerEnd   = "# === SITE BLOCKER END ==="
)

// Writer rewrites the managed region of the hosts table. All methods are
// idempotent: applying the same sites twice leaves the file untouched the
// second time.
type Writer struct {
	path       string
	redirectIP string
	logger     log.Logger
}

var _ engine.Enforcer = (*Writer)(nil)

// New returns a writer for the hosts table at path that redirects blocked
// hostnames to redirectIP.
func New(path, redirectIP string, logger log.Logger) *Writer {
	return &Writer{path: path, redirectIP: redirectIP, logger: logger}
}

// Path returns the location of the hosts table.
func (w *Writer) Path() string {
	return w.path
}

// Apply rewrites the managed region to exactly the given sites, removing
// the region when the list is empty. A missing hosts file counts as empty
// and is created on first write.
func (w *Writer) Apply(sites []domain.Site) (domain.EnforceResult, error) {
	content, err := w.read()
	if err != nil {
		return domain.EnforceResult{}, err
	}
	reg, err := split(content)
	if err != nil {
		return domain.EnforceResult{}, err
	}

	lines := redirectLines(w.redirectIP, sites)
	next := assemble(content, reg, lines)
	if next == content {
		w.logger.Debug(map[string]any{
			"path":      w.path,
			"hostnames": len(lines),
		}, "hosts table already current")
		return domain.EnforceResult{Updated: false, Hostnames: len(lines)}, nil
	}

	if err := w.replace(next); err != nil {
		return domain.EnforceResult{}, err
	}
	w.logger.Info(map[string]any{
		"path":      w.path,
		"hostnames": len(lines),
	}, "hosts table updated")
	return domain.EnforceResult{Updated: true, Hostnames: len(lines)}, nil
}

// Clear removes the managed region entirely. Used at shutdown so no block
// outlives the daemon.
func (w *Writer) Clear() (domain.EnforceResult, error) {
	return w.Apply(nil)
}

// Current returns the hostnames presently written in the managed region,
// nil when the region is absent.
func (w *Writer) Current() ([]string, error) {
	content, err := w.read()
	if err != nil {
		return nil, err
	}
	reg, err := split(content)
	if err != nil {
		return nil, err
	}
	if !reg.present {
		return nil, nil
	}

	body := content[len(reg.prefix) : len(content)-len(reg.suffix)]
	var hosts []string
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			hosts = append(hosts, fields[1:]...)
		}
	}
	return hosts, scanner.Err()
}

func (w *Writer) read() (string, error) {
	raw, err := os.ReadFile(w.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: reading %s: %w", domain.ErrTableAccess, w.path, err)
	}
	return string(raw), nil
}

// replace swaps the table content atomically via a temp file in the same
// directory, keeping the original file mode.
func (w *Writer) replace(next string) error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(w.path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(w.path), ".hosts-*")
	if err != nil {
		return fmt.Errorf("%w: staging %s: %w", domain.ErrTableAccess, w.path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(next); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: writing %s: %w", domain.ErrTableAccess, w.path, err)
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: writing %s: %w", domain.ErrTableAccess, w.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: writing %s: %w", domain.ErrTableAccess, w.path, err)
	}
	if err := os.Rename(tmp.Name(), w.path); err != nil {
		return fmt.Errorf("%w: replacing %s: %w", domain.ErrTableAccess, w.path, err)
	}
	return nil
}

// redirectLines renders one line per hostname in deterministic order.
func redirectLines(ip string, sites []domain.Site) []string {
	ordered := make([]domain.Site, len(sites))
	copy(ordered, sites)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	var lines []string
	for _, site := range ordered {
		for _, host := range site.Hostnames() {
			lines = append(lines, ip+"  "+host)
		}
	}
	return lines
}

// region is the managed block located inside the table content. prefix and
// suffix are the untouched bytes around it.
type region struct {
	prefix  string
	suffix  string
	present bool
}

// split locates the managed region. A table without markers is valid and
// wholly prefix. Unpaired, reversed or repeated markers make the table
// corrupt and nothing may be written.
func split(content string) (region, error) {
	var (
		starts, ends           int
		startAt, endLineStart  int
		endPast                int
	)
	offset := 0
	for offset <= len(content) {
		lineEnd := strings.IndexByte(content[offset:], '\n')
		var line string
		next := len(content)
		if lineEnd >= 0 {
			line = content[offset : offset+lineEnd]
			next = offset + lineEnd + 1
		} else {
			line = content[offset:]
		}

		switch strings.TrimSpace(line) {
		case markerStart:
			starts++
			if starts == 1 {
				startAt = offset
			}
		case markerEnd:
			ends++
			if ends == 1 {
				endLineStart = offset
				endPast = next
			}
		}

		if lineEnd < 0 {
			break
		}
		offset = next
	}

	switch {
	case starts == 0 && ends == 0:
		return region{prefix: content}, nil
	case starts > 1 || ends > 1:
		return region{}, fmt.Errorf("%w: markers appear more than once", domain.ErrTableCorrupt)
	case ends == 0:
		return region{}, fmt.Errorf("%w: start marker without end", domain.ErrTableCorrupt)
	case starts == 0:
		return region{}, fmt.Errorf("%w: end marker without start", domain.ErrTableCorrupt)
	case endLineStart < startAt:
		return region{}, fmt.Errorf("%w: end marker before start", domain.ErrTableCorrupt)
	}
	return region{prefix: content[:startAt], suffix: content[endPast:], present: true}, nil
}

// assemble builds the next table content. The untouched bytes around the
// region carry over verbatim, so a later clear restores the table exactly.
func assemble(content string, reg region, lines []string) string {
	if len(lines) == 0 {
		if !reg.present {
			return content
		}
		return reg.prefix + reg.suffix
	}

	block := markerStart + "\n" + strings.Join(lines, "\n") + "\n" + markerEnd + "\n"
	if reg.present {
		return reg.prefix + block + reg.suffix
	}
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return content + block
}
