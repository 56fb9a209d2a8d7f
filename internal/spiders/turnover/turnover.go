// Package turnover crawls the platform turnover figure from a JSON endpoint.
package turnover

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/JakeFAU/crawlkit/internal/crawler"
)

// Name registers the spider.
const Name = "turnover"

// SeedURL is the platform statistics endpoint.
const SeedURL = "https://www.weidai.com.cn/index/v2/indexPlatformData"

const turnoverPath = "data.turnover"

// Spider returns the turnover crawler definition.
func Spider() crawler.Spider {
	return crawler.Spider{
		Name:  Name,
		Seeds: crawler.URLs(SeedURL),
		Table: "trade_amount",
		Parse: Parse,
	}
}

// Parse yields one record holding the turnover in units of 100 million yuan.
func Parse(_ context.Context, result crawler.FetchResult) iter.Seq2[*crawler.Record, error] {
	return func(yield func(*crawler.Record, error) bool) {
		amount, err := extract(result.PageSource)
		if err != nil {
			yield(nil, err)
			return
		}
		yield(crawler.NewRecord(
			"capture_time", crawler.Now(),
			"item_name", Name,
			"trade_amount", amount,
		), nil)
	}
}

func extract(page string) (string, error) {
	if !gjson.Valid(page) {
		return "", errors.New("response is not valid JSON")
	}
	v := gjson.Get(page, turnoverPath)
	if !v.Exists() {
		return "", fmt.Errorf("response has no %s", turnoverPath)
	}
	return strings.TrimSpace(strings.ReplaceAll(v.String(), "亿元", "")), nil
}
