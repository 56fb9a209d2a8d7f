package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrontierPopsLastInFirstOut(t *testing.T) {
	t.Parallel()

	f := NewFrontier(URLs("http://a", "http://b", "http://c")...)
	var got []string
	for {
		item, ok := f.Pop()
		if !ok {
			break
		}
		got = append(got, item.URL)
	}
	require.Equal(t, []string{"http://c", "http://b", "http://a"}, got)
	require.Equal(t, 0, f.Len())
	require.Equal(t, 3, f.VisitedCount())
}

func TestFrontierPushDuringDrain(t *testing.T) {
	t.Parallel()

	f := NewFrontier(URL("http://seed"))
	item, ok := f.Pop()
	require.True(t, ok)
	require.True(t, f.Visited(item))

	f.Push(URL("http://x"), Post("http://y", "a=1"))
	next, ok := f.Pop()
	require.True(t, ok)
	require.Equal(t, "http://y", next.URL)
	require.True(t, next.HasPayload())
	require.False(t, f.Visited(URL("http://x")))
	require.False(t, f.Visited(URL("http://y")), "pairs are keyed by payload too")
}

func TestFrontierAllowsDuplicates(t *testing.T) {
	t.Parallel()

	f := NewFrontier(URL("http://a"))
	_, _ = f.Pop()
	f.Push(URL("http://a"))
	require.Equal(t, 1, f.Len())
	item, ok := f.Pop()
	require.True(t, ok)
	require.Equal(t, "http://a", item.URL)
	require.Equal(t, 1, f.VisitedCount())
}

func TestFrontierEmpty(t *testing.T) {
	t.Parallel()

	f := NewFrontier()
	if _, ok := f.Pop(); ok {
		t.Fatal("expected empty frontier")
	}
}
