package navigator

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/surtiapp-scraper/internal/models"
)

const (
	cardSelector = ".product-card"
	linkSelector = ".product-card__body--link"
	detailMarker = "ProductDetail/"
)

// ParseCandidates extracts product links from a rendered listing. Relative
// links are resolved against pageURL. Cards without a usable link are skipped.
func ParseCandidates(html, pageURL string) ([]models.CandidateItem, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}

	var items []models.CandidateItem
	doc.Find(cardSelector).Each(func(_ int, card *goquery.Selection) {
		href, ok := card.Find(linkSelector).First().Attr("href")
		if !ok {
			return
		}
		item, ok := candidateFromHref(base, href)
		if !ok {
			return
		}
		items = append(items, item)
	})

	return items, nil
}

func candidateFromHref(base *url.URL, href string) (models.CandidateItem, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return models.CandidateItem{}, false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return models.CandidateItem{}, false
	}
	resolved := base.ResolveReference(ref)

	idx := strings.LastIndex(resolved.Path, detailMarker)
	if idx < 0 {
		return models.CandidateItem{}, false
	}
	id := strings.Trim(resolved.Path[idx+len(detailMarker):], "/")
	if id == "" {
		return models.CandidateItem{}, false
	}

	return models.CandidateItem{ID: id, URL: resolved.String()}, true
}
