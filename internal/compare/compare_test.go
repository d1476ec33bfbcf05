package compare

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	oldExport = "dn: cn=a,dc=example,dc=com\ncn: a\n\ndn: cn=b,dc=example,dc=com\ncn: b\n\n"
	newExport = "dn: cn=a,dc=example,dc=com\ncn: A\n\ndn: cn=c,dc=example,dc=com\ncn: c\n\n"
)

func TestCompare_Identical(t *testing.T) {
	res, err := Compare(oldExport, oldExport, DefaultOptions())
	require.NoError(t, err)
	assert.False(t, res.HasDifferences)
	assert.Empty(t, res.Hunks)
	assert.True(t, res.Summary.Empty())
}

func TestCompare_Different(t *testing.T) {
	res, err := Compare(oldExport, newExport, DefaultOptions())
	require.NoError(t, err)
	assert.True(t, res.HasDifferences)
	assert.NotEmpty(t, res.Hunks)
	assert.Contains(t, res.Unified, "-cn: a")
	assert.Contains(t, res.Unified, "+cn: A")

	assert.Equal(t, []string{"dn: cn=c,dc=example,dc=com"}, res.Summary.Added)
	assert.Equal(t, []string{"dn: cn=b,dc=example,dc=com"}, res.Summary.Removed)
	assert.Equal(t, []string{"dn: cn=a,dc=example,dc=com"}, res.Summary.Changed)
	assert.Equal(t, "1 added, 1 removed, 1 changed", res.Summary.String())
}

func TestCompare_WrapColumnIsNotADifference(t *testing.T) {
	folded := "dn: cn=a\ndescriptio\n n: aaaaaa\n aaa\n\n"
	flat := "dn: cn=a\ndescription: aaaaaaaaa\n\n"

	res, err := Compare(folded, flat, DefaultOptions())
	require.NoError(t, err)
	assert.False(t, res.HasDifferences)
}

func TestCompare_Labels(t *testing.T) {
	opts := DefaultOptions()
	opts.OldLabel = "monday.ldif"
	opts.NewLabel = "tuesday.ldif"

	res, err := Compare(oldExport, newExport, opts)
	require.NoError(t, err)
	assert.Contains(t, res.Unified, "monday.ldif")
	assert.Contains(t, res.Unified, "tuesday.ldif")
}

func TestCompare_EmptyOld(t *testing.T) {
	res, err := Compare("", newExport, DefaultOptions())
	require.NoError(t, err)
	assert.True(t, res.HasDifferences)
	assert.Len(t, res.Summary.Added, 2)
	assert.Empty(t, res.Summary.Removed)
}

func TestUnfold(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"no folding", "dn: cn=a\ncn: a\n", "dn: cn=a\ncn: a\n"},
		{"folded", "dn: cn=a\ndescriptio\n n: x\n\n", "dn: cn=a\ndescription: x\n\n"},
		{"multi fold", "a\n b\n c\n", "abc\n"},
		{"crlf", "dn: cn=a\r\ncn: a\r\n", "dn: cn=a\ncn: a\n"},
		{"no trailing newline", "dn: cn=a", "dn: cn=a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Unfold(tt.in))
		})
	}
}

func TestRecords(t *testing.T) {
	doc := "# exported\ndn: cn=a\ncn: a\n\ndn:: Y249w6k=\ncn: b\n\n\n"

	recs := Records(doc)
	require.Len(t, recs, 2)
	assert.Equal(t, "dn: cn=a\ncn: a\n", recs["dn: cn=a"])
	assert.Contains(t, recs, "dn:: Y249w6k=")
}

func TestCompareFiles_Gzip(t *testing.T) {
	dir := t.TempDir()

	oldPath := filepath.Join(dir, "old.ldif")
	require.NoError(t, os.WriteFile(oldPath, []byte(oldExport), 0o600))

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(newExport))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	newPath := filepath.Join(dir, "new.ldif.gz")
	require.NoError(t, os.WriteFile(newPath, buf.Bytes(), 0o600))

	res, err := CompareFiles(oldPath, newPath, Options{Context: 3})
	require.NoError(t, err)
	assert.True(t, res.HasDifferences)
	assert.Equal(t, oldPath, res.OldLabel)
	assert.Equal(t, newPath, res.NewLabel)
	assert.Contains(t, res.Unified, "+cn: A")
}

func TestCompareFiles_Missing(t *testing.T) {
	dir := t.TempDir()

	_, err := CompareFiles(filepath.Join(dir, "a.ldif"), filepath.Join(dir, "b.ldif"), DefaultOptions())
	require.Error(t, err)
}

func TestWrite_NoColor(t *testing.T) {
	res, err := Compare(oldExport, newExport, DefaultOptions())
	require.NoError(t, err)

	var buf bytes.Buffer
	Write(&buf, res, false)

	out := buf.String()
	assert.NotContains(t, out, "\033[")
	assert.Contains(t, out, "-cn: a")
	assert.Contains(t, out, "+cn: A")
	assert.Contains(t, out, "entries: 1 added, 1 removed, 1 changed")
}

func TestWrite_WithColor(t *testing.T) {
	res, err := Compare(oldExport, newExport, DefaultOptions())
	require.NoError(t, err)

	var buf bytes.Buffer
	Write(&buf, res, true)
	assert.Contains(t, buf.String(), red+"-cn: a"+reset)
	assert.Contains(t, buf.String(), green+"+cn: A"+reset)
}

func TestWrite_NoDifferences(t *testing.T) {
	res, err := Compare(oldExport, oldExport, DefaultOptions())
	require.NoError(t, err)

	var buf bytes.Buffer
	Write(&buf, res, false)
	assert.Contains(t, buf.String(), "No differences")
}

func TestSplitLines(t *testing.T) {
	assert.Equal(t, []string{"a\n", "b\n", "c"}, splitLines("a\nb\nc"))
	assert.Equal(t, []string{"a\n", "b\n", "c\n", ""}, splitLines("a\nb\nc\n"))
	assert.Equal(t, []string{""}, splitLines(""))
}
