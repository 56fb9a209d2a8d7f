package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawlkit/internal/crawler"
	"github.com/JakeFAU/crawlkit/internal/spiders"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CRAWLKIT_DATA_DIR", t.TempDir())
	var out bytes.Buffer
	root := newRootCmd(spiders.Default())
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestListCommand(t *testing.T) {
	out, err := execute(t, "list")
	require.NoError(t, err)
	require.Equal(t, "loans\nturnover\n", out)
}

func TestRunUnknownSpider(t *testing.T) {
	_, err := execute(t, "run", "nope")
	require.ErrorIs(t, err, crawler.ErrConfiguration)
}

func TestRunRequiresSpiderName(t *testing.T) {
	_, err := execute(t, "run")
	require.Error(t, err)
}

func TestBadConfigFile(t *testing.T) {
	_, err := execute(t, "--config", "/nonexistent/crawlkit.yaml", "list")
	require.Error(t, err)
}
