package feed

import (
	"encoding/xml"

	"github.com/shopspring/decimal"
)

// Feed is a parsed catalog document.
type Feed struct {
	Date       string
	ShopName   string
	Categories []Category
	Offers     []Offer
	// Warnings lists records dropped while parsing.
	Warnings []string
}

// Category is one <category> element.
type Category struct {
	ID       int64
	ParentID *int64
	Name     string
}

// Offer is one <offer> element after field defaults have been applied.
type Offer struct {
	ID          string
	Available   bool
	Name        string
	VendorCode  string
	Price       decimal.Decimal
	RetailPrice decimal.Decimal
	CategoryID  string
	Pictures    []string
	Params      []Param
	Description *string
}

// Param is a free-form name/value attribute of an offer.
type Param struct {
	Name  string
	Value string
}

// Stats summarises image coverage of a feed.
type Stats struct {
	Offers           int
	OffersWithImages int
	Images           int
}

// Coverage returns the share of offers that carry at least one picture, in percent.
func (s Stats) Coverage() float64 {
	if s.Offers == 0 {
		return 0
	}
	return float64(s.OffersWithImages) / float64(s.Offers) * 100
}

// Add accumulates other into s.
func (s *Stats) Add(other Stats) {
	s.Offers += other.Offers
	s.OffersWithImages += other.OffersWithImages
	s.Images += other.Images
}

// Wire format. Pointers distinguish missing elements from empty ones.

type xmlCatalog struct {
	XMLName xml.Name `xml:"yml_catalog"`
	Date    string   `xml:"date,attr"`
	Shop    *xmlShop `xml:"shop"`
}

type xmlShop struct {
	Name       string         `xml:"name"`
	Categories *xmlCategories `xml:"categories"`
	Offers     *xmlOffers     `xml:"offers"`
}

type xmlCategories struct {
	Items []xmlCategory `xml:"category"`
}

type xmlCategory struct {
	ID       string `xml:"id,attr"`
	ParentID string `xml:"parentId,attr"`
	Name     string `xml:",chardata"`
}

type xmlOffers struct {
	Items []xmlOffer `xml:"offer"`
}

type xmlOffer struct {
	ID          string     `xml:"id,attr"`
	Available   string     `xml:"available,attr"`
	Name        *string    `xml:"name"`
	VendorCode  *string    `xml:"vendorCode"`
	Price       *string    `xml:"price"`
	RoznPrice   *string    `xml:"roznPrice"`
	CategoryID  string     `xml:"categoryId"`
	Pictures    []string   `xml:"picture"`
	Params      []xmlParam `xml:"param"`
	Description *string    `xml:"description"`
}

type xmlParam struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}
