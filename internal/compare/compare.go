// Package compare produces unified diffs between two LDIF exports, together
// with a per-entry summary keyed by DN. Folded lines are joined first so a
// different wrap column does not show up as a change.
package compare

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/hupe1980/ldifexport/internal/source"
)

// Options configures diff computation.
type Options struct {
	OldLabel string
	NewLabel string
	Context  int
}

// DefaultOptions returns sensible default diff options.
func DefaultOptions() Options {
	return Options{
		OldLabel: "old",
		NewLabel: "new",
		Context:  3,
	}
}

// Summary lists the DNs of entries that differ between two exports.
type Summary struct {
	Added   []string
	Removed []string
	Changed []string
}

// Empty reports whether no entry differs.
func (s Summary) Empty() bool {
	return len(s.Added) == 0 && len(s.Removed) == 0 && len(s.Changed) == 0
}

// String returns a compact summary line.
func (s Summary) String() string {
	return fmt.Sprintf("%d added, %d removed, %d changed", len(s.Added), len(s.Removed), len(s.Changed))
}

// Result holds a unified diff and its entry summary.
type Result struct {
	Unified        string
	HasDifferences bool
	Hunks          []string
	Summary        Summary
	OldLabel       string
	NewLabel       string
}

// Compare computes the diff between two LDIF documents.
func Compare(oldDoc, newDoc string, opts Options) (*Result, error) {
	oldDoc, newDoc = Unfold(oldDoc), Unfold(newDoc)

	diff := difflib.UnifiedDiff{
		A:        splitLines(oldDoc),
		B:        splitLines(newDoc),
		FromFile: opts.OldLabel,
		ToFile:   opts.NewLabel,
		Context:  opts.Context,
	}

	unified, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return nil, fmt.Errorf("computing diff: %w", err)
	}

	res := &Result{
		Unified:        unified,
		HasDifferences: unified != "",
		OldLabel:       opts.OldLabel,
		NewLabel:       opts.NewLabel,
	}

	if res.HasDifferences {
		res.Hunks = extractHunks(unified)
		res.Summary = summarize(Records(oldDoc), Records(newDoc))
	}

	return res, nil
}

// CompareFiles reads two exports and compares them. Gzip-compressed files
// (".gz") are decompressed; "-" reads stdin.
func CompareFiles(oldPath, newPath string, opts Options) (*Result, error) {
	oldDoc, err := readExport(oldPath)
	if err != nil {
		return nil, err
	}

	newDoc, err := readExport(newPath)
	if err != nil {
		return nil, err
	}

	if opts.OldLabel == "" {
		opts.OldLabel = oldPath
	}

	if opts.NewLabel == "" {
		opts.NewLabel = newPath
	}

	return Compare(oldDoc, newDoc, opts)
}

func readExport(path string) (string, error) {
	rc, err := source.Open(path)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("reading export %s: %w", path, err)
	}

	return string(data), nil
}

// Unfold joins LDIF continuation lines (lines starting with a single space)
// onto the preceding line.
func Unfold(doc string) string {
	var b strings.Builder

	b.Grow(len(doc))

	sc := bufio.NewScanner(strings.NewReader(doc))
	sc.Buffer(make([]byte, 0, 64*1024), len(doc)+1)

	first := true

	for sc.Scan() {
		line := strings.TrimSuffix(sc.Text(), "\r")

		if !first && strings.HasPrefix(line, " ") {
			b.WriteString(line[1:])
			continue
		}

		if !first {
			b.WriteByte('\n')
		}

		b.WriteString(line)

		first = false
	}

	if !first && strings.HasSuffix(doc, "\n") {
		b.WriteByte('\n')
	}

	return b.String()
}

// Records splits an unfolded LDIF document into records keyed by their DN
// line. Comment lines are ignored.
func Records(doc string) map[string]string {
	records := make(map[string]string)

	for _, block := range strings.Split(doc, "\n\n") {
		var (
			key  string
			body strings.Builder
		)

		for _, line := range strings.Split(block, "\n") {
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}

			if key == "" && (strings.HasPrefix(line, "dn:") || strings.HasPrefix(line, "dn::")) {
				key = line
			}

			body.WriteString(line)
			body.WriteByte('\n')
		}

		if key != "" {
			records[key] = body.String()
		}
	}

	return records
}

func summarize(oldRecs, newRecs map[string]string) Summary {
	var s Summary

	for key, body := range newRecs {
		prev, ok := oldRecs[key]

		switch {
		case !ok:
			s.Added = append(s.Added, key)
		case prev != body:
			s.Changed = append(s.Changed, key)
		}
	}

	for key := range oldRecs {
		if _, ok := newRecs[key]; !ok {
			s.Removed = append(s.Removed, key)
		}
	}

	sort.Strings(s.Added)
	sort.Strings(s.Removed)
	sort.Strings(s.Changed)

	return s
}

// extractHunks splits unified diff output into individual hunks.
func extractHunks(unified string) []string {
	var hunks []string

	var current strings.Builder

	for _, line := range strings.Split(unified, "\n") {
		if strings.HasPrefix(line, "@@") && current.Len() > 0 {
			hunks = append(hunks, current.String())
			current.Reset()
		}

		current.WriteString(line)
		current.WriteString("\n")
	}

	if current.Len() > 0 {
		hunks = append(hunks, current.String())
	}

	return hunks
}

// splitLines splits a string into lines for difflib, keeping newlines.
func splitLines(s string) []string {
	if s == "" {
		return []string{""}
	}

	return strings.SplitAfter(s, "\n")
}
