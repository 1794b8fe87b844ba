// Package importer loads parsed catalog feeds into the catalog store.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/storefront/internal/catalog"
	"github.com/odyssey-erp/storefront/internal/feed"
	"github.com/odyssey-erp/storefront/internal/slug"
)

// DefaultProgressEvery is how often offer progress is logged.
const DefaultProgressEvery = 100

// Run and offer outcomes reported to the Recorder.
const (
	StatusSucceeded = "succeeded"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"

	OutcomeImported = "imported"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

var (
	ErrUnresolvedCategory = errors.New("importer: unresolved category")
	ErrCategoryCycle      = errors.New("importer: category parent cycle")
)

// Store is the catalog persistence used by an import run.
type Store interface {
	UpsertCategory(ctx context.Context, in catalog.CategoryUpsert) (int64, error)
	CategoryExists(ctx context.Context, id int64) (bool, error)
	WithTx(ctx context.Context, fn func(context.Context, catalog.OfferWriter) error) error
}

// Invalidator drops cached catalog reads after an import changed data.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Recorder receives run metrics.
type Recorder interface {
	OfferProcessed(outcome string)
	RunFinished(status string, elapsed time.Duration)
}

// Summary aggregates the counters of one or more runs.
type Summary struct {
	RunID              string `json:"run_id,omitempty"`
	CategoriesImported int    `json:"categories"`
	ProductsImported   int    `json:"imported"`
	ProductsWithImages int    `json:"with_images"`
	Skipped            int    `json:"skipped"`
	Errors             int    `json:"errors"`
	Total              int    `json:"total"`
}

// Add accumulates other into s.
func (s *Summary) Add(other Summary) {
	s.CategoriesImported += other.CategoriesImported
	s.ProductsImported += other.ProductsImported
	s.ProductsWithImages += other.ProductsWithImages
	s.Skipped += other.Skipped
	s.Errors += other.Errors
	s.Total += other.Total
}

// FileResult is the outcome of importing one file of a batch.
type FileResult struct {
	Path    string
	Summary Summary
	Err     error
}

// Options tunes an Importer. Zero values select defaults.
type Options struct {
	ProgressEvery int
	Logger        *slog.Logger
	Recorder      Recorder
	Invalidator   Invalidator
}

// Importer runs the category pass then the offer pass against a Store.
// Runs are sequential; one Importer may be reused for many runs.
type Importer struct {
	store       Store
	logger      *slog.Logger
	every       int
	recorder    Recorder
	invalidator Invalidator
	now         func() time.Time
}

// New constructs an Importer.
func New(store Store, opts Options) *Importer {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = DefaultProgressEvery
	}
	return &Importer{
		store:       store,
		logger:      opts.Logger,
		every:       opts.ProgressEvery,
		recorder:    opts.Recorder,
		invalidator: opts.Invalidator,
		now:         time.Now,
	}
}

// ImportFile parses and imports the feed at path. Parse failures abort the
// file before anything is written.
func (i *Importer) ImportFile(ctx context.Context, path string) (Summary, error) {
	doc, err := feed.ParseFile(path)
	if err != nil {
		i.record(StatusFailed, 0)
		return Summary{}, err
	}
	i.logger.Info("feed parsed",
		slog.String("path", path),
		slog.Int("categories", len(doc.Categories)),
		slog.Int("offers", len(doc.Offers)))
	return i.Import(ctx, doc)
}

// ImportFiles imports each path in order. A failing file is reported in its
// FileResult and the batch moves on; only cancellation stops the batch.
func (i *Importer) ImportFiles(ctx context.Context, paths []string) ([]FileResult, Summary, error) {
	var (
		results []FileResult
		total   Summary
	)
	for _, path := range paths {
		sum, err := i.ImportFile(ctx, path)
		results = append(results, FileResult{Path: path, Summary: sum, Err: err})
		total.Add(sum)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return results, total, ctxErr
		}
		if err != nil {
			i.logger.Error("feed import failed", slog.String("path", path), slog.Any("error", err))
		}
	}
	return results, total, nil
}

// Import writes doc to the store. Per-item failures are logged and counted;
// the returned error is non-nil only when ctx is done, in which case the
// summary covers the offers processed so far.
func (i *Importer) Import(ctx context.Context, doc *feed.Feed) (Summary, error) {
	start := i.now()
	sum := Summary{RunID: uuid.NewString(), Total: len(doc.Offers)}
	logger := i.logger.With(slog.String("run_id", sum.RunID))
	logger.Info("import started",
		slog.String("shop", doc.ShopName),
		slog.String("feed_date", doc.Date),
		slog.Int("offers", len(doc.Offers)))
	for _, w := range doc.Warnings {
		logger.Warn("feed record dropped", slog.String("reason", w))
	}

	remap, err := i.importCategories(ctx, logger, doc.Categories, &sum)
	if err != nil {
		return i.finish(ctx, logger, sum, start, err)
	}

	for n, offer := range doc.Offers {
		if err := ctx.Err(); err != nil {
			return i.finish(ctx, logger, sum, start, err)
		}
		if err := i.importOffer(ctx, logger, offer, remap, &sum); err != nil {
			return i.finish(ctx, logger, sum, start, err)
		}
		if (n+1)%i.every == 0 {
			logger.Info("import progress",
				slog.Int("processed", n+1),
				slog.Int("total", sum.Total),
				slog.Int("imported", sum.ProductsImported),
				slog.Int("errors", sum.Errors))
		}
	}
	return i.finish(ctx, logger, sum, start, nil)
}

func (i *Importer) finish(ctx context.Context, logger *slog.Logger, sum Summary, start time.Time, runErr error) (Summary, error) {
	elapsed := i.now().Sub(start)
	status := StatusSucceeded
	if runErr != nil {
		status = StatusCancelled
	}
	i.record(status, elapsed)

	if i.invalidator != nil && sum.CategoriesImported+sum.ProductsImported > 0 {
		// The run context may already be done; invalidation must still happen.
		if err := i.invalidator.Invalidate(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("catalog cache invalidation failed", slog.Any("error", err))
		}
	}

	logger.Info("import finished",
		slog.String("status", status),
		slog.Duration("elapsed", elapsed),
		slog.Int("categories", sum.CategoriesImported),
		slog.Int("imported", sum.ProductsImported),
		slog.Int("with_images", sum.ProductsWithImages),
		slog.Int("skipped", sum.Skipped),
		slog.Int("errors", sum.Errors),
		slog.Int("total", sum.Total))
	return sum, runErr
}

// importCategories upserts categories parents-first and returns the feed id →
// store id table used to resolve offers.
func (i *Importer) importCategories(ctx context.Context, logger *slog.Logger, cats []feed.Category, sum *Summary) (map[string]int64, error) {
	ordered, broken := orderCategories(cats)
	for _, c := range broken {
		sum.Errors++
		logger.Warn("category skipped",
			slog.Int64("category_id", c.ID),
			slog.Any("error", ErrCategoryCycle))
	}

	remap := make(map[string]int64, len(ordered))
	stored := make(map[int64]bool, len(ordered))
	for _, c := range ordered {
		if err := ctx.Err(); err != nil {
			return remap, err
		}
		parent, err := i.resolveParent(ctx, logger, c, stored)
		if err != nil {
			if ctx.Err() != nil {
				return remap, ctx.Err()
			}
			sum.Errors++
			logger.Error("category parent lookup failed", slog.Int64("category_id", c.ID), slog.Any("error", err))
			continue
		}
		id, err := i.store.UpsertCategory(ctx, catalog.CategoryUpsert{
			ID:       c.ID,
			Name:     c.Name,
			Slug:     slug.WithSuffix(c.Name, strconv.FormatInt(c.ID, 10), 0),
			ParentID: parent,
		})
		if err != nil {
			if ctx.Err() != nil {
				return remap, ctx.Err()
			}
			sum.Errors++
			logger.Error("category import failed", slog.Int64("category_id", c.ID), slog.Any("error", err))
			continue
		}
		stored[c.ID] = true
		remap[strconv.FormatInt(c.ID, 10)] = id
		sum.CategoriesImported++
	}
	return remap, nil
}

// resolveParent keeps the parent when it was stored in this run or already
// exists; otherwise the category is attached to the root.
func (i *Importer) resolveParent(ctx context.Context, logger *slog.Logger, c feed.Category, stored map[int64]bool) (*int64, error) {
	if c.ParentID == nil || stored[*c.ParentID] {
		return c.ParentID, nil
	}
	ok, err := i.store.CategoryExists(ctx, *c.ParentID)
	if err != nil {
		return nil, err
	}
	if ok {
		return c.ParentID, nil
	}
	logger.Warn("category parent not found, attaching to root",
		slog.Int64("category_id", c.ID),
		slog.Int64("parent_id", *c.ParentID))
	return nil, nil
}

// importOffer applies one offer inside its own error boundary. Only context
// cancellation is returned; every other failure is counted.
func (i *Importer) importOffer(ctx context.Context, logger *slog.Logger, offer feed.Offer, remap map[string]int64, sum *Summary) error {
	// Unavailable offers are not imported at all, not even as unavailable.
	if !offer.Available {
		sum.Skipped++
		i.offer(OutcomeSkipped)
		return nil
	}

	fail := func(err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		sum.Errors++
		i.offer(OutcomeFailed)
		logger.Warn("offer import failed",
			slog.String("offer_id", offer.ID),
			slog.String("vendor_code", offer.VendorCode),
			slog.Any("error", err))
		return nil
	}

	categoryID, ok := remap[strings.TrimSpace(offer.CategoryID)]
	if !ok {
		return fail(fmt.Errorf("%w: %q", ErrUnresolvedCategory, offer.CategoryID))
	}
	productSlug := slug.WithSuffix(offer.Name, offer.VendorCode, slug.MaxProductLength)
	if productSlug == "" {
		return fail(slug.ErrEmpty)
	}

	images := imagesFor(offer)
	variants := make([]catalog.VariantInput, len(offer.Params))
	for n, p := range offer.Params {
		variants[n] = catalog.VariantInput{Name: p.Name, Value: p.Value}
	}

	err := i.store.WithTx(ctx, func(ctx context.Context, w catalog.OfferWriter) error {
		productID, err := w.UpsertProduct(ctx, catalog.ProductUpsert{
			Name:        offer.Name,
			Slug:        productSlug,
			VendorCode:  offer.VendorCode,
			CategoryID:  categoryID,
			BasePrice:   offer.Price,
			RetailPrice: offer.RetailPrice,
			Available:   offer.Available,
			Description: offer.Description,
		})
		if err != nil {
			return err
		}
		if err := w.ReplaceImages(ctx, productID, images); err != nil {
			return err
		}
		return w.ReplaceVariants(ctx, productID, variants)
	})
	if err != nil {
		return fail(err)
	}

	sum.ProductsImported++
	if len(images) > 0 {
		sum.ProductsWithImages++
	}
	i.offer(OutcomeImported)
	return nil
}

// imagesFor lists the offer pictures, first occurrence wins, with the
// product name as alt text.
func imagesFor(offer feed.Offer) []catalog.ImageInput {
	alt := offer.Name
	images := make([]catalog.ImageInput, 0, len(offer.Pictures))
	for _, url := range offer.Pictures {
		images = append(images, catalog.ImageInput{URL: url, Alt: &alt})
	}
	return catalog.DedupeImages(images)
}

// orderCategories returns categories so that every parent present in the
// feed precedes its children, plus the categories whose ancestry loops.
// A repeated id keeps its last definition at the position of its first.
func orderCategories(cats []feed.Category) (ordered, broken []feed.Category) {
	const (
		visiting = iota + 1
		done
		failed
	)
	byID := make(map[int64]feed.Category, len(cats))
	ids := make([]int64, 0, len(cats))
	for _, c := range cats {
		if _, seen := byID[c.ID]; !seen {
			ids = append(ids, c.ID)
		}
		byID[c.ID] = c
	}

	state := make(map[int64]int, len(byID))
	var visit func(id int64) bool
	visit = func(id int64) bool {
		switch state[id] {
		case visiting, failed:
			return false
		case done:
			return true
		}
		state[id] = visiting
		c := byID[id]
		if c.ParentID != nil {
			if _, inFeed := byID[*c.ParentID]; inFeed && !visit(*c.ParentID) {
				state[id] = failed
				broken = append(broken, c)
				return false
			}
		}
		state[id] = done
		ordered = append(ordered, c)
		return true
	}
	for _, id := range ids {
		visit(id)
	}
	return ordered, broken
}

func (i *Importer) offer(outcome string) {
	if i.recorder != nil {
		i.recorder.OfferProcessed(outcome)
	}
}

func (i *Importer) record(status string, elapsed time.Duration) {
	if i.recorder != nil {
		i.recorder.RunFinished(status, elapsed)
	}
}
