package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/catalog-scraper/internal/models"
)

// ErrModalNotFound is returned when the size chart modal is absent from the
// markup.
var ErrModalNotFound = errors.New("size chart modal not found")

// ParseSizeChart reads every table inside the modal matched by modalSelector.
// Header cells after the first name the size columns; each body row's first
// cell is the row label and the rest map to the columns by position. Empty
// values are left out, and a label seen in several tables gets one entry per
// table.
func ParseSizeChart(markup, modalSelector string) (models.SizeChart, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	modal := doc.Find(modalSelector).First()
	if modal.Length() == 0 {
		return nil, ErrModalNotFound
	}

	chart := make(models.SizeChart)

	modal.Find("table").Each(func(_ int, table *goquery.Selection) {
		thead := table.Find("thead").First()
		tbody := table.Find("tbody").First()
		if thead.Length() == 0 || tbody.Length() == 0 {
			return
		}

		var headers []string
		thead.Find("th").Each(func(_ int, th *goquery.Selection) {
			headers = append(headers, StrippedText(th))
		})
		if len(headers) == 0 {
			return
		}
		sizes := headers[1:]

		tbody.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			var cells []string
			tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, StrippedText(cell))
			})
			if len(cells) < 2 {
				return
			}

			label, values := cells[0], cells[1:]
			entry := make(map[string]string)
			for i, size := range sizes {
				if i < len(values) && values[i] != "" {
					entry[size] = values[i]
				}
			}
			chart[label] = append(chart[label], entry)
		})
	})

	return chart, nil
}
