package order

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Identifiers embedded in free text or links carry 8-20 characters after the date.
var embedded = regexp.MustCompile(`(?i)\b\d{6}[A-Z0-9]{8,20}\b`)

// Selectors tried in order; the first one yielding identifiers wins.
var detectSelectors = []string{
	`a[href*="/portal/sale/"]`,
	`[data-order-id]`,
	`div[class*="order"]`,
	`span[class*="order"]`,
	`td`,
	`span`,
	`a`,
}

// Detect extracts order identifiers from an orders page. Results are
// upper-cased and de-duplicated in first-seen order.
func Detect(html string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var found []string
	for _, sel := range detectSelectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if v, ok := s.Attr("data-order-id"); ok && Validate(strings.TrimSpace(v)) {
				found = append(found, v)
			}
			if goquery.NodeName(s) == "a" {
				href, _ := s.Attr("href")
				found = append(found, embedded.FindAllString(href, -1)...)
			}
			text := strings.TrimSpace(s.Text())
			if len(text) < 10 || len(text) > 30 {
				return
			}
			cleaned := strings.NewReplacer(" ", "", "\n", "", "\t", "").Replace(text)
			if Validate(cleaned) {
				found = append(found, cleaned)
			}
		})
		if len(found) > 0 {
			break
		}
	}

	if len(found) == 0 {
		found = embedded.FindAllString(doc.Find("body").Text(), -1)
	}
	return Unique(found), nil
}
