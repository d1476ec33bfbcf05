package ldif

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/ldifexport/internal/entry"
)

func TestEncoder_Basic(t *testing.T) {
	var buf bytes.Buffer

	enc := NewEncoder(&buf)

	e := entry.New("uid=alice,ou=people,dc=example,dc=com").
		Add("objectClass", "top", "inetOrgPerson").
		Add("uid", "alice").
		Add("cn", "Alice Liddell")

	require.NoError(t, enc.Encode(e))
	require.NoError(t, enc.Encode(entry.New("dc=example,dc=com").Add("dc", "example")))

	want := "dn: uid=alice,ou=people,dc=example,dc=com\n" +
		"objectClass: top\n" +
		"objectClass: inetOrgPerson\n" +
		"uid: alice\n" +
		"cn: Alice Liddell\n" +
		"\n" +
		"dn: dc=example,dc=com\n" +
		"dc: example\n" +
		"\n"

	assert.Equal(t, want, buf.String())
	assert.Equal(t, 2, enc.Count())
}

func TestEncoder_Base64(t *testing.T) {
	var buf bytes.Buffer

	e := entry.New("cn=Jürgen,dc=example").
		Add("description", " leading space").
		Add("cn", "Jürgen")

	require.NoError(t, NewEncoder(&buf).Encode(e))

	out := buf.String()
	assert.Contains(t, out, "dn:: Y249SsO8cmdlbixkYz1leGFtcGxl\n")
	assert.Contains(t, out, "description:: IGxlYWRpbmcgc3BhY2U=\n")
	assert.Contains(t, out, "cn:: SsO8cmdlbg==\n")
}

func TestEncoder_EmptyValue(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, NewEncoder(&buf).Encode(entry.New("cn=x").Add("description", "")))
	assert.Equal(t, "dn: cn=x\ndescription:\n\n", buf.String())
}

func TestEncoder_TypesOnly(t *testing.T) {
	var buf bytes.Buffer

	e := entry.New("cn=x").Add("cn", "x", "y").Add("sn", "z")

	require.NoError(t, NewEncoder(&buf, WithTypesOnly(true)).Encode(e))
	assert.Equal(t, "dn: cn=x\ncn:\nsn:\n\n", buf.String())
}

func TestEncoder_Wrap(t *testing.T) {
	var buf bytes.Buffer

	e := entry.New("cn=x").Add("description", strings.Repeat("a", 20))

	require.NoError(t, NewEncoder(&buf, WithWrapColumn(10)).Encode(e))

	want := "dn: cn=x\n" +
		"descriptio\n" +
		" n: aaaaaa\n" +
		" aaaaaaaaa\n" +
		" aaaaa\n" +
		"\n"
	assert.Equal(t, want, buf.String())

	// Unfolding restores the original line.
	unfolded := strings.ReplaceAll(buf.String(), "\n ", "")
	assert.Contains(t, unfolded, "description: "+strings.Repeat("a", 20)+"\n")
}

func TestEncoder_WrapDisabled(t *testing.T) {
	var buf bytes.Buffer

	long := strings.Repeat("b", 200)

	require.NoError(t, NewEncoder(&buf, WithWrapColumn(0)).Encode(entry.New("cn=x").Add("cn", long)))
	assert.Contains(t, buf.String(), "cn: "+long+"\n")
}

type errWriter struct{}

func (errWriter) Write([]byte) (int, error) { return 0, errors.New("boom") }

func TestEncoder_WriteError(t *testing.T) {
	enc := NewEncoder(errWriter{})

	err := enc.Encode(entry.New("cn=x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cn=x")
	assert.Zero(t, enc.Count())
}

func TestIsSafe(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"", true},
		{"plain value", true},
		{" lead", false},
		{":colon", false},
		{"<url", false},
		{"trail ", false},
		{"a\nb", false},
		{"a\rb", false},
		{"nul\x00", false},
		{"ümlaut", false},
		{"inner: colon <ok>", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSafe([]byte(tt.in)))
		})
	}
}
