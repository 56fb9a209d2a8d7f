// Package loans crawls loan listings that are only reachable after a browser session has
// been established on the member site.
package loans

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/crawlkit/internal/crawler"
)

// Name registers the spider.
const Name = "loans"

// BaseURL is the member site home page, visited first to obtain session cookies.
const BaseURL = "https://member.niwodai.com"

const (
	listURL   = BaseURL + "/portal/loan/getLoanList.do?pageNo=%d"
	listPages = 10
	linkCSS   = "a.link_prolist"
)

var (
	listProbe = crawler.MustProbe("regex", `<a class="link_prolist" href="(.*?)" target="_blank">`)

	detailPattern = regexp.MustCompile(`(?s)<i class="fl biao_tips size24 img_icon_new sItem_new_12100 mar_r10" style="margin-top: 2px;"></i>\s+(.*?)\s+.*?class="yunyingact fs_14 ml_10">.*?<em class="fs_14 fc_9 ml_30 block pad_l5 pad_t5">(.*?)</em>.*?<em class="block mar_b5 fc_9">债权总额 </em>\s+<p class="lh36"><em class="fs_30 Numfont">\s+(.*?)\s+</em><em class="fs_16">元</em>`)
)

// Spider returns the loans crawler definition. Listing pages are rendered in the browser;
// detail pages are fetched with POST once the cookies have been copied to the HTTP session.
func Spider() crawler.Spider {
	return crawler.Spider{
		Name:   Name,
		Table:  "loan_detail_niwodai",
		Render: crawler.Bool(true),
		Method: crawler.MethodPost,
		Headers: http.Header{
			"Content-Type": {"application/x-www-form-urlencoded"},
		},
		Timeout: 5 * time.Second,
		Probe:   listProbe,
		Prepare: Prepare,
		Parse:   Parse,
	}
}

// Prepare warms up the browser session on the home page, collects detail links from the
// listing pages in reverse page order and switches later fetches to the HTTP session.
func Prepare(ctx context.Context, s crawler.Session) error {
	if _, err := s.Request(ctx, BaseURL); err != nil {
		return fmt.Errorf("warm up: %w", err)
	}
	for page := listPages; page >= 1; page-- {
		src, err := s.Request(ctx, fmt.Sprintf(listURL, page))
		if err != nil {
			continue
		}
		links, err := ExtractLinks(src)
		if err != nil {
			return fmt.Errorf("listing page %d: %w", page, err)
		}
		for _, link := range links {
			s.Push(crawler.URL(link))
		}
	}
	return s.SetRender(false)
}

// ExtractLinks returns the absolute detail URLs listed on a listing page, in page order.
func ExtractLinks(page string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}
	base, err := url.Parse(BaseURL)
	if err != nil {
		return nil, err
	}
	var links []string
	doc.Find(linkCSS).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		links = append(links, base.ResolveReference(ref).String())
	})
	return links, nil
}

// Parse yields one record per loan listed on a detail page.
func Parse(_ context.Context, result crawler.FetchResult) iter.Seq2[*crawler.Record, error] {
	return func(yield func(*crawler.Record, error) bool) {
		for _, m := range detailPattern.FindAllStringSubmatch(result.PageSource, -1) {
			record := crawler.NewRecord(
				"capture_time", crawler.Now(),
				"subject", Name,
				"loan_id", strings.TrimPrefix(m[2], "项目ID："),
				"loan_amount", strings.ReplaceAll(m[3], ",", ""),
				"comment", m[1],
			)
			if !yield(record, nil) {
				return
			}
		}
	}
}
