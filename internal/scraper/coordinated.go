package scraper

import (
	"context"
	"fmt"

	"github.com/maltedev/catalog-scraper/internal/browser"
	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/maltedev/catalog-scraper/internal/parser"
)

// coordinated visits each style card of the product's carousel and reads
// the items on the style page. The card addresses are read up front because
// navigating invalidates the carousel's element handles.
func (x *ProductExtractor) coordinated(ctx context.Context, page browser.Page) ([]models.CoordinatedItem, error) {
	if _, err := page.WaitForSelector(x.sel.StyleCard, browser.StateAttached, x.opts.WaitTimeout); err != nil {
		return nil, err
	}
	cards, err := page.QuerySelectorAll(x.sel.StyleCard)
	if err != nil {
		return nil, err
	}

	base := page.URL()
	var hrefs []string
	for _, card := range cards {
		href, err := card.GetAttribute("href")
		if err != nil {
			continue
		}
		if u := resolveURL(base, href); u != "" {
			hrefs = append(hrefs, u)
		}
	}

	items := make([]models.CoordinatedItem, 0)
	for _, href := range hrefs {
		if err := ctx.Err(); err != nil {
			return items, err
		}

		if err := page.Goto(href); err != nil {
			x.run.LogError(fmt.Sprintf("Failed (%s)", href), err)
			continue
		}

		if _, err := page.WaitForSelector(x.sel.CoordinatedCard, browser.StateAttached, x.opts.WaitTimeout); err != nil {
			x.run.LogError("Error finding product cards", err)
			continue
		}
		productCards, err := page.QuerySelectorAll(x.sel.CoordinatedCard)
		if err != nil {
			x.run.LogError("Error finding product cards", err)
			continue
		}

		for _, card := range productCards {
			item, err := x.coordinatedItem(page.URL(), card)
			if err != nil {
				x.run.LogError("Error processing coordinated product", err)
				continue
			}
			items = append(items, item)
		}
	}

	return items, nil
}

func (x *ProductExtractor) coordinatedItem(base string, card browser.Element) (models.CoordinatedItem, error) {
	var item models.CoordinatedItem

	link, err := card.QuerySelector(x.sel.CoordinatedLink)
	if err != nil {
		return item, err
	}
	href, err := link.GetAttribute("href")
	if err != nil {
		return item, err
	}
	item.URL = resolveURL(base, href)
	item.ProductNumber = parser.ProductNumber(item.URL)

	img, err := card.QuerySelector(x.sel.CoordinatedImage)
	if err != nil {
		return item, err
	}
	src, err := img.GetAttribute("src")
	if err != nil {
		return item, err
	}
	item.ImageURL = resolveURL(base, src)

	if item.Price, err = browser.TextOf(card, x.sel.CoordinatedPrice); err != nil {
		return item, err
	}

	return item, nil
}
