// Package parser turns rendered product-page markup into structured values.
package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var (
	reviewCountPattern = regexp.MustCompile(`\((\d+)\)`)
	fillWidthPattern   = regexp.MustCompile(`width:\s*(\d+)`)
)

// ParseReviewCount extracts the parenthesised count from a reviews header
// such as "レビュー (128)".
func ParseReviewCount(text string) (int, bool) {
	m := reviewCountPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// FillWidth reads the percentage width from a star mask's inline style.
func FillWidth(style string) (int, bool) {
	m := fillWidthPattern.FindStringSubmatch(style)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// StarRating counts the star masks filled to at least threshold percent.
func StarRating(widths []int, threshold int) int {
	stars := 0
	for _, w := range widths {
		if w >= threshold {
			stars++
		}
	}
	return stars
}

// ProductNumber is the last path segment of a product address up to its
// first dot: ".../item/ABC123.html" yields "ABC123".
func ProductNumber(url string) string {
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		url = url[:i]
	}
	last := url[strings.LastIndex(url, "/")+1:]
	if i := strings.Index(last, "."); i >= 0 {
		last = last[:i]
	}
	return last
}

// StrippedText joins the whitespace-trimmed text nodes below sel with no
// separator, so "<th>S<br> (85) </th>" reads "S(85)".
func StrippedText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(strings.TrimSpace(n.Data))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return b.String()
}
