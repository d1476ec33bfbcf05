package selection

import (
	"errors"
	"sync"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/ldifexport/internal/dn"
	"github.com/hupe1980/ldifexport/internal/entry"
	"github.com/hupe1980/ldifexport/internal/filter"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func branches(values ...string) []*ldap.DN {
	out := make([]*ldap.DN, len(values))
	for i, v := range values {
		out[i] = dn.MustParse(v)
	}

	return out
}

func filters(t *testing.T, exprs ...string) []filter.Matcher {
	t.Helper()

	ms, err := filter.CompileAll(exprs)
	require.NoError(t, err)

	return ms
}

func person(name string) *entry.Entry {
	return entry.New(name).Add("objectClass", "person").Add("cn", "x")
}

// countingMatcher records how often it was consulted.
type countingMatcher struct {
	mu     sync.Mutex
	calls  int
	result bool
	err    error
}

func (m *countingMatcher) Matches(*entry.Entry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++

	return m.result, m.err
}

// ---------------------------------------------------------------------------
// Decide
// ---------------------------------------------------------------------------

func TestDecide_EmptyCriteriaIncludesEverything(t *testing.T) {
	p := New(DefaultCriteria())

	for _, name := range []string{"", "dc=com", "uid=a,ou=people,dc=example,dc=com", "not a dn"} {
		d, err := p.Decide(person(name))
		require.NoError(t, err)
		assert.Equal(t, Include, d, name)
	}
}

func TestDecide_ExcludeBranchBeatsIncludeFilter(t *testing.T) {
	p := New(Criteria{
		ExcludeBranches: branches("dc=private"),
		IncludeFilters:  filters(t, "(objectClass=*)"),
	})

	for _, name := range []string{"dc=private", "uid=a,dc=private", "uid=a,ou=x,dc=private"} {
		d, err := p.Decide(person(name))
		require.NoError(t, err)
		assert.Equal(t, Exclude, d, name)
	}

	d, err := p.Decide(person("uid=b,dc=example"))
	require.NoError(t, err)
	assert.Equal(t, Include, d)
}

func TestDecide_IncludeBranchMiss(t *testing.T) {
	p := New(Criteria{IncludeBranches: branches("ou=people,dc=example", "ou=groups,dc=example")})

	tests := []struct {
		dn   string
		want Decision
	}{
		{"uid=a,ou=people,dc=example", Include},
		{"cn=g,ou=groups,dc=example", Include},
		{"ou=people,dc=example", Include},
		{"dc=example", Exclude},
		{"uid=a,ou=robots,dc=example", Exclude},
	}

	for _, tt := range tests {
		t.Run(tt.dn, func(t *testing.T) {
			d, err := p.Decide(person(tt.dn))
			require.NoError(t, err)
			assert.Equal(t, tt.want, d)
		})
	}
}

func TestDecide_IncludeFilterMissExcludes(t *testing.T) {
	p := New(Criteria{IncludeFilters: filters(t, "(objectClass=groupOfNames)", "(uid=bob)")})

	d, err := p.Decide(person("uid=a,dc=example"))
	require.NoError(t, err)
	assert.Equal(t, Exclude, d)

	d, err = p.Decide(entry.New("uid=bob,dc=example").Add("uid", "bob"))
	require.NoError(t, err)
	assert.Equal(t, Include, d)
}

func TestDecide_ExcludeFilterMatch(t *testing.T) {
	p := New(Criteria{ExcludeFilters: filters(t, "(cn=x)")})

	d, err := p.Decide(person("uid=a,dc=example"))
	require.NoError(t, err)
	assert.Equal(t, Exclude, d)
}

func TestDecide_ShortCircuits(t *testing.T) {
	exclude := &countingMatcher{result: false}
	include := &countingMatcher{result: true}

	p := New(Criteria{
		ExcludeBranches: branches("dc=private"),
		ExcludeFilters:  []filter.Matcher{exclude},
		IncludeFilters:  []filter.Matcher{include},
	})

	d, err := p.Decide(person("uid=a,dc=private"))
	require.NoError(t, err)
	assert.Equal(t, Exclude, d)
	assert.Zero(t, exclude.calls, "filters must not run once a branch excluded the entry")
	assert.Zero(t, include.calls)

	d, err = p.Decide(person("uid=a,dc=public"))
	require.NoError(t, err)
	assert.Equal(t, Include, d)
	assert.Equal(t, 1, exclude.calls)
	assert.Equal(t, 1, include.calls)
}

func TestDecide_FilterFailureIsSurfaced(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name     string
		criteria Criteria
		stage    Stage
	}{
		{
			name:     "exclude filter",
			criteria: Criteria{ExcludeFilters: []filter.Matcher{&countingMatcher{err: boom}}},
			stage:    StageExcludeFilters,
		},
		{
			name:     "include filter",
			criteria: Criteria{IncludeFilters: []filter.Matcher{&countingMatcher{err: boom}}},
			stage:    StageIncludeFilters,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.criteria).Decide(person("uid=a,dc=example"))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrFilterEvaluation)
			assert.ErrorIs(t, err, boom)

			var evalErr *EvaluationError
			require.ErrorAs(t, err, &evalErr)
			assert.Equal(t, tt.stage, evalErr.Stage)
			assert.Equal(t, "uid=a,dc=example", evalErr.DN)
		})
	}
}

func TestDecide_UnparsableDNWithBranchCriteria(t *testing.T) {
	p := New(Criteria{ExcludeBranches: branches("dc=private")})

	_, err := p.Decide(person("garbage"))
	require.Error(t, err)

	var evalErr *EvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, StageIdentity, evalErr.Stage)
}

func TestDecide_ConcurrentUse(t *testing.T) {
	p := New(Criteria{
		ExcludeBranches: branches("dc=private"),
		IncludeFilters:  filters(t, "(objectClass=person)"),
	})

	var wg sync.WaitGroup

	for i := 0; i < 32; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			name := "uid=a,dc=public"
			want := Include

			if i%2 == 0 {
				name = "uid=a,dc=private"
				want = Exclude
			}

			d, err := p.Decide(person(name))
			assert.NoError(t, err)
			assert.Equal(t, want, d)
		}(i)
	}

	wg.Wait()
}

func TestNew_SnapshotsCriteria(t *testing.T) {
	c := Criteria{
		ExcludeBranches:   branches("dc=private"),
		ExcludeAttributes: AttributeSet("mail"),
	}
	p := New(c)

	c.ExcludeAttributes["cn"] = struct{}{}
	c.ExcludeBranches[0] = branches("dc=example")[0]

	assert.True(t, p.RetainAttribute("cn"))
	assert.False(t, p.RetainAttribute("mail"))

	d, err := p.Decide(entry.New("cn=a,dc=example"))
	require.NoError(t, err)
	assert.Equal(t, Include, d)

	d, err = p.Decide(entry.New("cn=b,dc=private"))
	require.NoError(t, err)
	assert.Equal(t, Exclude, d)
}

// ---------------------------------------------------------------------------
// RetainAttribute
// ---------------------------------------------------------------------------

func TestRetainAttribute(t *testing.T) {
	tests := []struct {
		name     string
		criteria Criteria
		attr     string
		want     bool
	}{
		{"empty sets keep all", Criteria{}, "anything", true},
		{"excluded", Criteria{ExcludeAttributes: AttributeSet("A")}, "a", false},
		{"not excluded", Criteria{ExcludeAttributes: AttributeSet("A")}, "b", true},
		{"included", Criteria{IncludeAttributes: AttributeSet("cn", "sn")}, "CN", true},
		{"not included", Criteria{IncludeAttributes: AttributeSet("cn", "sn")}, "mail", false},
		{"exclude wins over include", Criteria{
			ExcludeAttributes: AttributeSet("cn"),
			IncludeAttributes: AttributeSet("cn"),
		}, "cn", false},
		{"options ignored", Criteria{ExcludeAttributes: AttributeSet("cn")}, "cn;lang-en", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.criteria).RetainAttribute(tt.attr))
		})
	}
}

func TestRetainAttributeOf(t *testing.T) {
	oc := entry.Attribute{Type: "objectClass"}
	op := entry.Attribute{Type: "createTimestamp", Operational: true}
	virt := entry.Attribute{Type: "isMemberOf", Virtual: true}
	plain := entry.Attribute{Type: "cn"}

	def := New(DefaultCriteria())
	assert.True(t, def.RetainAttributeOf(oc))
	assert.True(t, def.RetainAttributeOf(op))
	assert.False(t, def.RetainAttributeOf(virt))
	assert.True(t, def.RetainAttributeOf(plain))

	strict := New(Criteria{IncludeVirtualAttributes: true})
	assert.False(t, strict.RetainAttributeOf(oc))
	assert.False(t, strict.RetainAttributeOf(op))
	assert.True(t, strict.RetainAttributeOf(virt))

	c := DefaultCriteria()
	c.ExcludeAttributes = AttributeSet("cn")
	assert.False(t, New(c).RetainAttributeOf(plain))
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "all entries", New(DefaultCriteria()).Describe())

	p := New(Criteria{ExcludeBranches: branches("dc=a"), IncludeAttributes: AttributeSet("cn", "sn")})
	assert.Equal(t, "excludeBranches=1 includeAttributes=2", p.Describe())
}

func TestDecision_String(t *testing.T) {
	assert.Equal(t, "include", Include.String())
	assert.Equal(t, "exclude", Exclude.String())
}
