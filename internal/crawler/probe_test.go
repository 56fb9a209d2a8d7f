package crawler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewProbeValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		kind string
		expr []string
	}{
		{"unknown kind", "xpath", []string{"//a"}},
		{"regex arity", "regex", []string{"a", "b"}},
		{"css_text arity", "css_text", []string{"div"}},
		{"bad regex", "regex", []string{"("}},
		{"bad selector", "css", []string{"div[["}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewProbe(tc.kind, tc.expr...)
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("NewProbe(%q, %q) error = %v, want ErrConfiguration", tc.kind, tc.expr, err)
			}
		})
	}
}

func TestProbeReady(t *testing.T) {
	t.Parallel()

	page := `<html><body><div id="list"><span class="amt">12.5 亿元</span><span class="amt">3</span></div>
<p>loan
done</p></body></html>`

	tests := []struct {
		name string
		kind string
		expr []string
		want bool
	}{
		{"regex matches across lines", "find_text_by_regex", []string{`loan.done`}, true},
		{"regex misses", "regex", []string{`nothing here`}, false},
		{"css exists", "find_elmt_by_css", []string{"#list .amt"}, true},
		{"css missing", "css", []string{"table"}, false},
		{"css text first element", "find_text_by_css", []string{".amt", "亿元"}, true},
		{"css text only checks first", "css_text", []string{".amt", "3"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p, err := NewProbe(tc.kind, tc.expr...)
			require.NoError(t, err)
			got, err := p.Ready(page)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestMustProbePanics(t *testing.T) {
	t.Parallel()

	require.Panics(t, func() { MustProbe("bogus", "x") })
	require.Equal(t, ProbeRegex, MustProbe("find_text_by_regex", "x").Kind())
}
