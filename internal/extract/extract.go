// Package extract turns a search results document into listings and the
// number of result pages.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

// Selectors locate listing fields inside a results page.
type Selectors struct {
	Card       string `mapstructure:"card"`
	Link       string `mapstructure:"link"`
	Price      string `mapstructure:"price"`
	PriceText  string `mapstructure:"price_text"`
	Video      string `mapstructure:"video"`
	Image      string `mapstructure:"image"`
	Pagination string `mapstructure:"pagination"`
}

// DefaultSelectors match the gallery view of the listing site.
func DefaultSelectors() Selectors {
	return Selectors{
		Card:       `[data-marker="item"]`,
		Link:       `[data-marker="item-title"]`,
		Price:      `meta[itemprop="price"]`,
		PriceText:  `[data-marker="item-price"]`,
		Video:      `[data-marker="item-video"], [class*="video"]`,
		Image:      `img`,
		Pagination: `[data-marker^="pagination-button"]`,
	}
}

// Parser extracts listings using a fixed set of selectors.
type Parser struct {
	sel Selectors
}

// New returns a Parser. Empty selector fields fall back to DefaultSelectors.
func New(sel Selectors) *Parser {
	def := DefaultSelectors()
	if sel.Card == "" {
		sel.Card = def.Card
	}
	if sel.Link == "" {
		sel.Link = def.Link
	}
	if sel.Price == "" {
		sel.Price = def.Price
	}
	if sel.PriceText == "" {
		sel.PriceText = def.PriceText
	}
	if sel.Video == "" {
		sel.Video = def.Video
	}
	if sel.Image == "" {
		sel.Image = def.Image
	}
	if sel.Pagination == "" {
		sel.Pagination = def.Pagination
	}
	return &Parser{sel: sel}
}

// Parse reads the document at pageURL. Relative links are resolved against it.
func (p *Parser) Parse(body []byte, pageURL string) (crawler.Page, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return crawler.Page{}, fmt.Errorf("parse page url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return crawler.Page{}, fmt.Errorf("parse html: %w", err)
	}

	seen := make(map[string]struct{})
	items := make([]crawler.Item, 0)
	doc.Find(p.sel.Card).Each(func(_ int, card *goquery.Selection) {
		item, ok := p.item(card, base)
		if !ok {
			return
		}
		if _, dup := seen[item.Link]; dup {
			return
		}
		seen[item.Link] = struct{}{}
		items = append(items, item)
	})

	return crawler.Page{Items: items, TotalPages: p.totalPages(doc, len(items))}, nil
}

func (p *Parser) item(card *goquery.Selection, base *url.URL) (crawler.Item, bool) {
	anchor := card.Find(p.sel.Link).First()
	if anchor.Length() == 0 && goquery.NodeName(card) == "a" {
		anchor = card
	}
	href, ok := anchor.Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return crawler.Item{}, false
	}
	link := resolve(base, href)
	if link == "" {
		return crawler.Item{}, false
	}

	title, _ := anchor.Attr("title")
	if strings.TrimSpace(title) == "" {
		title = anchor.Text()
	}

	item := crawler.Item{
		Link:    link,
		Title:   collapseSpace(title),
		IsVideo: card.Find(p.sel.Video).Length() > 0,
	}

	if content, ok := card.Find(p.sel.Price).First().Attr("content"); ok {
		item.Price = parsePrice(content)
	}
	if item.Price == nil {
		item.Price = parsePrice(card.Find(p.sel.PriceText).First().Text())
	}

	img := card.Find(p.sel.Image).First()
	src, _ := img.Attr("src")
	if src == "" {
		if srcset, ok := img.Attr("srcset"); ok {
			src = firstSrcsetURL(srcset)
		}
	}
	if src != "" {
		if resolved := resolve(base, src); resolved != "" {
			item.ImageLink = &resolved
		}
	}
	return item, true
}

// totalPages reads the largest page number from the pagination controls.
// Without pagination, a page with results is the only page.
func (p *Parser) totalPages(doc *goquery.Document, itemCount int) int {
	maxPage := 0
	doc.Find(p.sel.Pagination).Each(func(_ int, s *goquery.Selection) {
		if n, err := strconv.Atoi(strings.TrimSpace(s.Text())); err == nil && n > maxPage {
			maxPage = n
		}
	})
	if maxPage == 0 && itemCount > 0 {
		return 1
	}
	return maxPage
}

func parsePrice(raw string) *int64 {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return nil
	}
	v, err := strconv.ParseInt(digits.String(), 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

func resolve(base *url.URL, ref string) string {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(u)
	resolved.Fragment = ""
	return resolved.String()
}

func firstSrcsetURL(srcset string) string {
	first, _, _ := strings.Cut(srcset, ",")
	fields := strings.Fields(first)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
