// Package feed parses YML (Yandex.Market) catalog documents.
package feed

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/htmlindex"
)

// DefaultName replaces a missing or blank offer name.
const DefaultName = "Untitled"

// ErrMalformedFeed reports a document without the shop/categories/offers structure.
var ErrMalformedFeed = errors.New("feed: malformed document")

// ParseFile reads and parses the feed stored at path.
func ParseFile(path string) (*Feed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("feed: open %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a whole feed into memory.
func Parse(r io.Reader) (*Feed, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charsetReader

	var doc xmlCatalog
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrMalformedFeed)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedFeed, err)
	}
	switch {
	case doc.Shop == nil:
		return nil, fmt.Errorf("%w: missing <shop>", ErrMalformedFeed)
	case doc.Shop.Categories == nil:
		return nil, fmt.Errorf("%w: missing <categories>", ErrMalformedFeed)
	case doc.Shop.Offers == nil:
		return nil, fmt.Errorf("%w: missing <offers>", ErrMalformedFeed)
	}

	out := &Feed{
		Date:       strings.TrimSpace(doc.Date),
		ShopName:   strings.TrimSpace(doc.Shop.Name),
		Categories: make([]Category, 0, len(doc.Shop.Categories.Items)),
		Offers:     make([]Offer, 0, len(doc.Shop.Offers.Items)),
	}
	for _, raw := range doc.Shop.Categories.Items {
		cat, err := normalizeCategory(raw)
		if err != nil {
			out.Warnings = append(out.Warnings, err.Error())
			continue
		}
		out.Categories = append(out.Categories, cat)
	}
	for _, raw := range doc.Shop.Offers.Items {
		out.Offers = append(out.Offers, normalizeOffer(raw))
	}
	return out, nil
}

// Inspect reports how many offers carry pictures.
func Inspect(f *Feed) Stats {
	var s Stats
	if f == nil {
		return s
	}
	for _, offer := range f.Offers {
		s.Offers++
		if len(offer.Pictures) > 0 {
			s.OffersWithImages++
			s.Images += len(offer.Pictures)
		}
	}
	return s
}

func normalizeCategory(raw xmlCategory) (Category, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw.ID), 10, 64)
	if err != nil {
		return Category{}, fmt.Errorf("category %q: invalid id", raw.ID)
	}
	cat := Category{ID: id, Name: strings.TrimSpace(raw.Name)}
	if p := strings.TrimSpace(raw.ParentID); p != "" {
		parent, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return Category{}, fmt.Errorf("category %d: invalid parentId %q", id, raw.ParentID)
		}
		cat.ParentID = &parent
	}
	return cat, nil
}

// normalizeOffer applies the field defaults every import path relies on.
func normalizeOffer(raw xmlOffer) Offer {
	id := strings.TrimSpace(raw.ID)
	offer := Offer{
		ID:         id,
		Available:  strings.EqualFold(strings.TrimSpace(raw.Available), "true"),
		Name:       DefaultName,
		VendorCode: "item-" + id,
		CategoryID: strings.TrimSpace(raw.CategoryID),
	}
	if name := text(raw.Name); name != "" {
		offer.Name = name
	}
	if code := text(raw.VendorCode); code != "" {
		offer.VendorCode = code
	}

	offer.Price = parsePrice(text(raw.Price), decimal.Zero)
	offer.RetailPrice = parsePrice(text(raw.RoznPrice), offer.Price)

	for _, pic := range raw.Pictures {
		if pic = strings.TrimSpace(pic); pic != "" {
			offer.Pictures = append(offer.Pictures, pic)
		}
	}
	for _, p := range raw.Params {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			continue
		}
		offer.Params = append(offer.Params, Param{Name: name, Value: strings.TrimSpace(p.Value)})
	}
	if desc := text(raw.Description); desc != "" {
		offer.Description = &desc
	}
	return offer
}

func parsePrice(s string, fallback decimal.Decimal) decimal.Decimal {
	if s == "" {
		return fallback
	}
	// Some exporters write decimal commas.
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
	if err != nil {
		return fallback
	}
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func text(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("feed: unsupported charset %q: %w", label, err)
	}
	return enc.NewDecoder().Reader(input), nil
}
