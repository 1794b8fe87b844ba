package importer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/odyssey-erp/storefront/internal/catalog"
)

// fakeStore is an in-memory catalog enforcing the schema's unique and
// foreign-key constraints. WithTx restores a snapshot when fn fails.
type fakeStore struct {
	mu sync.Mutex
	state

	failVendor     map[string]error
	failCategory   map[int64]error
	upsertProducts int
}

type state struct {
	categories map[int64]catalog.CategoryUpsert
	products   map[int64]storedProduct
	images     map[int64]map[string]storedImage
	variants   map[int64][]catalog.VariantInput
	nextID     int64
}

type storedProduct struct {
	catalog.ProductUpsert
	ID int64
}

type storedImage struct {
	Alt   string
	Order int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		state: state{
			categories: map[int64]catalog.CategoryUpsert{},
			products:   map[int64]storedProduct{},
			images:     map[int64]map[string]storedImage{},
			variants:   map[int64][]catalog.VariantInput{},
		},
		failVendor:   map[string]error{},
		failCategory: map[int64]error{},
	}
}

func (s state) clone() state {
	out := state{
		categories: make(map[int64]catalog.CategoryUpsert, len(s.categories)),
		products:   make(map[int64]storedProduct, len(s.products)),
		images:     make(map[int64]map[string]storedImage, len(s.images)),
		variants:   make(map[int64][]catalog.VariantInput, len(s.variants)),
		nextID:     s.nextID,
	}
	for k, v := range s.categories {
		out.categories[k] = v
	}
	for k, v := range s.products {
		out.products[k] = v
	}
	for k, imgs := range s.images {
		cp := make(map[string]storedImage, len(imgs))
		for url, img := range imgs {
			cp[url] = img
		}
		out.images[k] = cp
	}
	for k, v := range s.variants {
		out.variants[k] = append([]catalog.VariantInput(nil), v...)
	}
	return out
}

func (f *fakeStore) UpsertCategory(ctx context.Context, in catalog.CategoryUpsert) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failCategory[in.ID]; err != nil {
		return 0, err
	}
	for id, c := range f.categories {
		if id != in.ID && c.Slug == in.Slug {
			return 0, fmt.Errorf("%w: categories_slug_key", catalog.ErrDuplicate)
		}
	}
	if in.ParentID != nil {
		if _, ok := f.categories[*in.ParentID]; !ok {
			return 0, fmt.Errorf("%w: categories_parent_id_fkey", catalog.ErrInvalidReference)
		}
	}
	f.categories[in.ID] = in
	return in.ID, nil
}

func (f *fakeStore) CategoryExists(ctx context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.categories[id]
	return ok, nil
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(context.Context, catalog.OfferWriter) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	snapshot := f.state.clone()
	f.mu.Unlock()

	if err := fn(ctx, f); err != nil {
		f.mu.Lock()
		f.state = snapshot
		f.mu.Unlock()
		return err
	}
	return nil
}

func (f *fakeStore) UpsertProduct(ctx context.Context, in catalog.ProductUpsert) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertProducts++
	if err := f.failVendor[in.VendorCode]; err != nil {
		return 0, err
	}
	if _, ok := f.categories[in.CategoryID]; !ok {
		return 0, fmt.Errorf("%w: products_category_id_fkey", catalog.ErrInvalidReference)
	}
	var existing *storedProduct
	for _, p := range f.products {
		if p.VendorCode == in.VendorCode {
			p := p
			existing = &p
			continue
		}
		if p.Slug == in.Slug {
			return 0, fmt.Errorf("%w: products_slug_key", catalog.ErrDuplicate)
		}
	}
	if existing == nil {
		f.nextID++
		f.products[f.nextID] = storedProduct{ProductUpsert: in, ID: f.nextID}
		return f.nextID, nil
	}
	if in.Description == nil {
		in.Description = existing.Description
	}
	f.products[existing.ID] = storedProduct{ProductUpsert: in, ID: existing.ID}
	return existing.ID, nil
}

func (f *fakeStore) ReplaceImages(ctx context.Context, productID int64, images []catalog.ImageInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.products[productID]; !ok {
		return fmt.Errorf("%w: product_images_product_id_fkey", catalog.ErrInvalidReference)
	}
	images = catalog.DedupeImages(images)
	keep := make(map[string]storedImage, len(images))
	for i, img := range images {
		alt := ""
		if img.Alt != nil {
			alt = *img.Alt
		}
		keep[img.URL] = storedImage{Alt: alt, Order: i}
	}
	if len(keep) == 0 {
		delete(f.images, productID)
		return nil
	}
	f.images[productID] = keep
	return nil
}

func (f *fakeStore) ReplaceVariants(ctx context.Context, productID int64, variants []catalog.VariantInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.products[productID]; !ok {
		return errors.New("unknown product")
	}
	f.variants[productID] = append([]catalog.VariantInput(nil), variants...)
	return nil
}

// product returns the stored product for vendorCode.
func (f *fakeStore) product(vendorCode string) (storedProduct, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.products {
		if p.VendorCode == vendorCode {
			return p, true
		}
	}
	return storedProduct{}, false
}

// imageOrder lists a product's image URLs sorted by their order column.
func (f *fakeStore) imageOrder(productID int64) ([]string, []int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	type row struct {
		url   string
		order int
	}
	var rows []row
	for url, img := range f.images[productID] {
		rows = append(rows, row{url, img.Order})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].order < rows[j].order })
	urls := make([]string, len(rows))
	orders := make([]int, len(rows))
	for i, r := range rows {
		urls[i], orders[i] = r.url, r.order
	}
	return urls, orders
}

// dump is a comparable view of the whole store.
func (f *fakeStore) dump() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var b strings.Builder
	for _, id := range sortedKeys(f.categories) {
		c := f.categories[id]
		fmt.Fprintf(&b, "category %d %q %q parent=%s\n", id, c.Name, c.Slug, deref(c.ParentID))
	}
	for _, id := range sortedKeys(f.products) {
		p := f.products[id]
		fmt.Fprintf(&b, "product %d %q %q %q cat=%d base=%s retail=%s available=%t desc=%s\n",
			id, p.Name, p.Slug, p.VendorCode, p.CategoryID,
			p.BasePrice.String(), p.RetailPrice.String(), p.Available, deref(p.Description))
		urls := make([]string, 0, len(f.images[id]))
		for url := range f.images[id] {
			urls = append(urls, url)
		}
		sort.Strings(urls)
		for _, url := range urls {
			img := f.images[id][url]
			fmt.Fprintf(&b, "  image %q alt=%q order=%d\n", url, img.Alt, img.Order)
		}
		for _, v := range f.variants[id] {
			fmt.Fprintf(&b, "  variant %q=%q\n", v.Name, v.Value)
		}
	}
	return b.String()
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func deref[T any](p *T) string {
	if p == nil {
		return "<nil>"
	}
	return fmt.Sprint(*p)
}

func catalogCategory(id int64, slug string) catalog.CategoryUpsert {
	return catalog.CategoryUpsert{ID: id, Name: slug, Slug: slug}
}
