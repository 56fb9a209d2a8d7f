package loans

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawlkit/internal/crawler"
)

const listingPage = `<html><body><ul>
<li><a class="link_prolist" href="/portal/loan/detail/1001.html" target="_blank">A</a></li>
<li><a class="link_prolist" href="https://member.niwodai.com/portal/loan/detail/1002.html" target="_blank">B</a></li>
<li><a class="other" href="/ignored">C</a></li>
</ul></body></html>`

const detailPage = `<div>
<i class="fl biao_tips size24 img_icon_new sItem_new_12100 mar_r10" style="margin-top: 2px;"></i>
    Working capital loan
    <span class="yunyingact fs_14 ml_10">operating</span>
    <em class="fs_14 fc_9 ml_30 block pad_l5 pad_t5">项目ID：NWD-1001</em>
    <em class="block mar_b5 fc_9">债权总额 </em>
    <p class="lh36"><em class="fs_30 Numfont">
        120,000
    </em><em class="fs_16">元</em></p>
</div>`

type fakeSession struct {
	pages    map[string]string
	pushed   []crawler.WorkItem
	render   *bool
	requests []string
}

func (s *fakeSession) Request(_ context.Context, rawURL string, _ ...crawler.RequestOption) (string, error) {
	s.requests = append(s.requests, rawURL)
	page, ok := s.pages[rawURL]
	if !ok {
		return "", fmt.Errorf("%w: %s", crawler.ErrNoResult, rawURL)
	}
	return page, nil
}

func (s *fakeSession) Push(items ...crawler.WorkItem) { s.pushed = append(s.pushed, items...) }

func (s *fakeSession) SetRender(enabled bool) error {
	s.render = &enabled
	return nil
}

func (s *fakeSession) SetMethod(string) error { return nil }

func (s *fakeSession) Frontier() *crawler.Frontier { return crawler.NewFrontier() }

func TestExtractLinks(t *testing.T) {
	t.Parallel()

	links, err := ExtractLinks(listingPage)
	require.NoError(t, err)
	require.Equal(t, []string{
		"https://member.niwodai.com/portal/loan/detail/1001.html",
		"https://member.niwodai.com/portal/loan/detail/1002.html",
	}, links)
}

func TestListProbeMatchesListing(t *testing.T) {
	t.Parallel()

	ready, err := listProbe.Ready(listingPage)
	require.NoError(t, err)
	require.True(t, ready)
	ready, err = listProbe.Ready("<html>loading</html>")
	require.NoError(t, err)
	require.False(t, ready)
}

func TestParseDetail(t *testing.T) {
	t.Parallel()

	var records []*crawler.Record
	for r, err := range Parse(context.Background(), crawler.FetchResult{PageSource: detailPage}) {
		require.NoError(t, err)
		records = append(records, r)
	}
	require.Len(t, records, 1)
	require.Equal(t, []string{"capture_time", "subject", "loan_id", "loan_amount", "comment"}, records[0].Keys())
	id, _ := records[0].Get("loan_id")
	require.Equal(t, "NWD-1001", id)
	amount, _ := records[0].Get("loan_amount")
	require.Equal(t, "120000", amount)
	comment, _ := records[0].Get("comment")
	require.Equal(t, "Working", comment)
}

func TestParseNoMatches(t *testing.T) {
	t.Parallel()

	count := 0
	for range Parse(context.Background(), crawler.FetchResult{PageSource: "<html/>"}) {
		count++
	}
	require.Zero(t, count)
}

func TestPrepareCollectsLinksAndSwitchesToStatic(t *testing.T) {
	t.Parallel()

	s := &fakeSession{pages: map[string]string{
		BaseURL:                 "<html>home</html>",
		fmt.Sprintf(listURL, 3): listingPage,
	}}
	require.NoError(t, Prepare(context.Background(), s))

	require.Equal(t, BaseURL, s.requests[0])
	require.Len(t, s.requests, 1+listPages)
	require.True(t, strings.HasSuffix(s.requests[1], "pageNo=10"))
	require.True(t, strings.HasSuffix(s.requests[len(s.requests)-1], "pageNo=1"))
	require.Equal(t, crawler.URLs(
		"https://member.niwodai.com/portal/loan/detail/1001.html",
		"https://member.niwodai.com/portal/loan/detail/1002.html",
	), s.pushed)
	require.NotNil(t, s.render)
	require.False(t, *s.render)
}

func TestPrepareFailsWithoutHomePage(t *testing.T) {
	t.Parallel()

	s := &fakeSession{pages: map[string]string{}}
	err := Prepare(context.Background(), s)
	require.True(t, errors.Is(err, crawler.ErrNoResult))
	require.Nil(t, s.render)
}

func TestSpiderDefinition(t *testing.T) {
	t.Parallel()

	sp := Spider()
	require.Equal(t, "loan_detail_niwodai", sp.Table)
	require.True(t, *sp.Render)
	require.Equal(t, crawler.MethodPost, sp.Method)
	require.Empty(t, sp.Seeds)
	require.NotNil(t, sp.Prepare)
}
