package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/storefront/internal/catalog"
	"github.com/odyssey-erp/storefront/internal/feed"
	"github.com/odyssey-erp/storefront/internal/importer"
	"github.com/odyssey-erp/storefront/jobs"
)

const smallFeed = `<yml_catalog><shop><categories><category id="1">Doors</category></categories><offers>
<offer id="1" available="true"><name>A</name><price>1</price><categoryId>1</categoryId><picture>http://x/a.jpg</picture></offer>
<offer id="2" available="true"><name>B</name><price>1</price><categoryId>1</categoryId></offer>
</offers></shop></yml_catalog>`

type stubBatch struct {
	results []importer.FileResult
	total   importer.Summary
	err     error
	paths   []string
}

func (s *stubBatch) ImportFiles(ctx context.Context, paths []string) ([]importer.FileResult, importer.Summary, error) {
	s.paths = paths
	return s.results, s.total, s.err
}

type stubStats struct {
	stats catalog.Stats
	calls int
}

func (s *stubStats) Stats(context.Context) (catalog.Stats, error) {
	s.calls++
	return s.stats, nil
}

type stubEnqueuer struct {
	paths []string
	err   error
}

func (s *stubEnqueuer) EnqueueImport(ctx context.Context, path string, removeAfter bool) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.paths = append(s.paths, path)
	return fmt.Sprintf("task-%d", len(s.paths)), nil
}

func writeFeed(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestImportCommandUsage(t *testing.T) {
	stderr := new(bytes.Buffer)
	cli := &ImportCLI{}
	assert.Equal(t, ExitUsage, cli.Command(context.Background(), ImportOptions{Stderr: stderr}))
	assert.Contains(t, stderr.String(), "feed file is required")

	stderr.Reset()
	code := cli.Command(context.Background(), ImportOptions{Files: []string{"a.xml"}, Async: true, Inspect: true, Stderr: stderr})
	assert.Equal(t, ExitUsage, code)
}

func TestImportCommandSyncHuman(t *testing.T) {
	batch := &stubBatch{
		results: []importer.FileResult{
			{Path: "a.xml", Summary: importer.Summary{ProductsImported: 2, Total: 3, ProductsWithImages: 1, CategoriesImported: 2, Skipped: 1}},
			{Path: "b.xml", Err: fmt.Errorf("%w: missing <shop>", feed.ErrMalformedFeed)},
		},
		total: importer.Summary{ProductsImported: 2, Total: 3, ProductsWithImages: 1, CategoriesImported: 2, Skipped: 1},
	}
	stats := &stubStats{stats: catalog.Stats{Categories: 2, Products: 2, Images: 1, ProductsWithImages: 1, ProductsWithoutImages: 1}}
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)

	code := (&ImportCLI{Importer: batch, Stats: stats}).Command(context.Background(), ImportOptions{
		Files:  []string{"a.xml", "b.xml"},
		Stdout: stdout,
		Stderr: stderr,
	})

	assert.Equal(t, ExitFailure, code, "a failed file fails the run")
	assert.Equal(t, []string{"a.xml", "b.xml"}, batch.paths)
	out := stdout.String()
	assert.Contains(t, out, "a.xml: imported 2/3 products (1 with images), 2 categories, 1 skipped, 0 errors")
	assert.Contains(t, out, "b.xml: FAILED: feed: malformed document: missing <shop>")
	assert.Contains(t, out, "total: imported 2/3")
	assert.Contains(t, out, "catalog: 2 categories, 2 products, 1 images, 1 products with images, 1 without")
	assert.Empty(t, stderr.String())
}

func TestImportCommandSyncJSON(t *testing.T) {
	batch := &stubBatch{
		results: []importer.FileResult{{Path: "a.xml", Summary: importer.Summary{ProductsImported: 1, Total: 1}}},
		total:   importer.Summary{ProductsImported: 1, Total: 1},
	}
	stdout := new(bytes.Buffer)
	code := (&ImportCLI{Importer: batch, Stats: &stubStats{}}).Command(context.Background(), ImportOptions{
		Files:      []string{"a.xml"},
		JSONOutput: true,
		Stdout:     stdout,
		Stderr:     new(bytes.Buffer),
	})
	require.Equal(t, ExitOK, code)

	var report ImportReport
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &report))
	require.Len(t, report.Files, 1)
	assert.Equal(t, 1, report.Total.ProductsImported)
	assert.NotNil(t, report.Catalog)
}

func TestImportCommandCancelledSkipsStats(t *testing.T) {
	batch := &stubBatch{err: context.Canceled}
	stats := &stubStats{}
	stderr := new(bytes.Buffer)
	code := (&ImportCLI{Importer: batch, Stats: stats}).Command(context.Background(), ImportOptions{
		Files:  []string{"a.xml"},
		Stdout: new(bytes.Buffer),
		Stderr: stderr,
	})
	assert.Equal(t, ExitFailure, code)
	assert.Zero(t, stats.calls)
	assert.Contains(t, stderr.String(), "context canceled")
}

func TestImportCommandInspect(t *testing.T) {
	good := writeFeed(t, "good.xml", smallFeed)
	bad := writeFeed(t, "bad.xml", "<nope/>")
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)

	code := (&ImportCLI{}).Command(context.Background(), ImportOptions{
		Files:   []string{good, bad},
		Inspect: true,
		Stdout:  stdout,
		Stderr:  stderr,
	})
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, stdout.String(), "good.xml: 2 offers, 1 with images (50.0%), 1 images")
	assert.Contains(t, stdout.String(), "total: 2 offers")
	assert.Contains(t, stderr.String(), "malformed document")
}

func TestImportCommandAsync(t *testing.T) {
	enq := &stubEnqueuer{}
	stdout := new(bytes.Buffer)
	code := (&ImportCLI{Enqueuer: enq}).Command(context.Background(), ImportOptions{
		Files:  []string{"/feeds/a.xml", "/feeds/b.xml"},
		Async:  true,
		Stdout: stdout,
		Stderr: new(bytes.Buffer),
	})
	require.Equal(t, ExitOK, code)
	assert.Equal(t, []string{"/feeds/a.xml", "/feeds/b.xml"}, enq.paths)
	assert.Contains(t, stdout.String(), "/feeds/b.xml: queued as task-2")

	stderr := new(bytes.Buffer)
	code = (&ImportCLI{Enqueuer: &stubEnqueuer{err: errors.New("redis down")}}).Command(context.Background(), ImportOptions{
		Files:  []string{"/feeds/a.xml"},
		Async:  true,
		Stdout: new(bytes.Buffer),
		Stderr: stderr,
	})
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, stderr.String(), "redis down")

	code = (&ImportCLI{}).Command(context.Background(), ImportOptions{Files: []string{"a.xml"}, Async: true, Stderr: new(bytes.Buffer)})
	assert.Equal(t, ExitFailure, code)
}

func TestJobsCLITrigger(t *testing.T) {
	var nilCLI *JobsCLI
	_, err := nilCLI.Trigger(context.Background(), jobs.TaskCatalogImport, []string{"a.xml"})
	require.Error(t, err)

	_, err = (&JobsCLI{}).InspectQueue(context.Background())
	require.Error(t, err)

	mr := miniredis.RunT(t)
	cli := NewJobsCLI(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cli.Close() })

	_, err = cli.Trigger(context.Background(), "mail:send", []string{"a.xml"})
	require.ErrorContains(t, err, "unsupported job")
	_, err = cli.Trigger(context.Background(), jobs.TaskCatalogImport, nil)
	require.ErrorContains(t, err, "no feed paths")

	ids, err := cli.Trigger(context.Background(), jobs.TaskCatalogImport, []string{"/feeds/a.xml", "/feeds/b.xml"})
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}
