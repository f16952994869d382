package parser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

func fragment(markup string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

// ParseDescription returns the heading and first body paragraph of the
// description section.
func ParseDescription(sectionHTML string) (title, body string, err error) {
	doc, err := fragment(sectionHTML)
	if err != nil {
		return "", "", err
	}

	h := doc.Find("h3").First()
	if h.Length() == 0 {
		return "", "", fmt.Errorf("description title not found")
	}
	p := doc.Find("p.gl-vspace").First()
	if p.Length() == 0 {
		return "", "", fmt.Errorf("description body not found")
	}

	return strings.TrimSpace(h.Text()), strings.TrimSpace(p.Text()), nil
}

// ParseSpecifications renders the specification section as bullet lines.
// Each non-empty list item becomes "• text"; the first table row whose label
// contains originMarker and has a value adds a final "• label: value" line.
func ParseSpecifications(sectionHTML, originMarker string) (string, error) {
	doc, err := fragment(sectionHTML)
	if err != nil {
		return "", err
	}

	var lines []string
	doc.Find("li").Each(func(_ int, li *goquery.Selection) {
		if text := strings.TrimSpace(li.Text()); text != "" {
			lines = append(lines, "• "+text)
		}
	})

	if originMarker != "" {
		doc.Find(".gl-table__row--body").EachWithBreak(func(_ int, row *goquery.Selection) bool {
			cells := row.Find(".gl-table__cell")
			if cells.Length() < 2 {
				return true
			}
			label := strings.TrimSpace(cells.Eq(0).Find(".gl-table__cell-inner").First().Text())
			value := strings.TrimSpace(cells.Eq(1).Find(".gl-table__cell-inner").First().Text())
			if strings.Contains(label, originMarker) && value != "" {
				lines = append(lines, fmt.Sprintf("• %s: %s", label, value))
				return false
			}
			return true
		})
	}

	return strings.Join(lines, "\n"), nil
}
