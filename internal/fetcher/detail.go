package fetcher

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/maltedev/surtiapp-scraper/internal/models"
)

// Detail is the normalized content of one SelectedProduct response.
// Nil fields were absent or null upstream.
type Detail struct {
	ID                 string
	CategoryName       *string
	ClassificationName *string
	ReferenceCode      *string
	Price              *float64
	DiscountPercentage *float64
	NewPrice           *float64
	Name               *string
	ManufacturerName   *string
	MaxQuantity        *int
	ImageURL           *string
}

type selectedProductEnvelope struct {
	Value json.RawMessage `json:"Value"`
}

type selectedProductValue struct {
	ProductDetailInformation *productDetailInformation `json:"ProductDetailInformation"`
	MediaInformation         []mediaInformation        `json:"MediaInformation"`
}

type productDetailInformation struct {
	CategoryName       *string     `json:"CategoryName"`
	ClassificationName *string     `json:"ClassificationName"`
	ReferenceCode      *flexString `json:"ReferenceCode"`
	Price              *flexNumber `json:"Price"`
	DiscountPercentage *flexNumber `json:"DiscountPercentage"`
	NewPrice           *flexNumber `json:"NewPrice"`
	Name               *string     `json:"Name"`
	ManufacturerName   *string     `json:"ManufacturerName"`
	MaxQuantity        *flexNumber `json:"MaxQuantity"`
}

type mediaInformation struct {
	URL *string `json:"Url"`
}

// DecodeDetail parses a SelectedProduct body. The envelope must carry a
// truthy Value holding ProductDetailInformation.
func DecodeDetail(id string, body []byte) (*Detail, error) {
	var envelope selectedProductEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if !truthy(envelope.Value) {
		return nil, ErrEmptyValue
	}

	var value selectedProductValue
	if err := json.Unmarshal(envelope.Value, &value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if value.ProductDetailInformation == nil {
		return nil, fmt.Errorf("%w: missing ProductDetailInformation", ErrMalformedPayload)
	}

	info := value.ProductDetailInformation
	detail := &Detail{
		ID:                 id,
		CategoryName:       info.CategoryName,
		ClassificationName: info.ClassificationName,
		ReferenceCode:      info.ReferenceCode.ptr(),
		Price:              info.Price.ptr(),
		DiscountPercentage: info.DiscountPercentage.ptr(),
		NewPrice:           info.NewPrice.ptr(),
		Name:               info.Name,
		ManufacturerName:   info.ManufacturerName,
	}
	if q := info.MaxQuantity.ptr(); q != nil {
		quantity := int(*q)
		detail.MaxQuantity = &quantity
	}
	if len(value.MediaInformation) > 0 {
		detail.ImageURL = value.MediaInformation[0].URL
	}

	return detail, nil
}

// ToRecord maps a detail onto a dataset row. It is a pure function of its
// inputs.
func ToRecord(d *Detail, item models.CandidateItem, capture models.Capture) models.ProductRecord {
	return models.ProductRecord{
		ProductURL:         item.URL,
		Category:           cloneString(d.CategoryName),
		Subcategory:        cloneString(d.ClassificationName),
		SKU:                cloneString(d.ReferenceCode),
		Price:              cloneFloat(d.Price),
		DiscountPercentage: cloneFloat(d.DiscountPercentage),
		DiscountPrice:      cloneFloat(d.NewPrice),
		ProductName:        cloneString(d.Name),
		AvailableQuantity:  cloneInt(d.MaxQuantity),
		PrimaryImage:       cloneString(d.ImageURL),
		StockStatus:        models.StockStatusFor(d.MaxQuantity),
		Brand:              cloneString(d.ManufacturerName),
		DateScrape:         capture.Date,
		Country:            models.CountryCode,
		CategoryURL:        capture.CategoryURL,
		ScrapedAt:          capture.Timestamp,
	}
}

func truthy(raw json.RawMessage) bool {
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		// Not valid JSON on its own; let the value decode report it.
		return len(bytes.TrimSpace(raw)) > 0
	}
	switch compact.String() {
	case "", "null", "false", "0", `""`, "{}", "[]":
		return false
	}
	return true
}

// flexString accepts a JSON string or number.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = flexString(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*s = flexString(num.String())
	return nil
}

func (s *flexString) ptr() *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

// flexNumber accepts a JSON number or a numeric string.
type flexNumber float64

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*n = flexNumber(f)
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("expected number, got %s", data)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
	if err != nil {
		return fmt.Errorf("expected numeric string, got %q", str)
	}
	*n = flexNumber(f)
	return nil
}

func (n *flexNumber) ptr() *float64 {
	if n == nil {
		return nil
	}
	v := float64(*n)
	return &v
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
