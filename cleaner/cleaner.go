// Package cleaner turns product page HTML into bounded plain text and
// Markdown that can be handed to a language model as context.
package cleaner

import (
	"log/slog"
	nurl "net/url"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/PuerkitoBio/goquery"
)

// Detail is the text view of a product page.
type Detail struct {
	// Description is the readable main content as plain text.
	Description string

	// Raw is the filtered page rendered as Markdown.
	Raw string

	// Tokens estimates the combined size of Description and Raw.
	Tokens int
}

// Cleaner is safe for concurrent use; the Markdown converter is shared.
type Cleaner struct {
	mdConverter *converter.Converter
}

// NewCleaner initialises the Cleaner with a pre-configured Markdown converter.
func NewCleaner() *Cleaner {
	return &Cleaner{mdConverter: newMarkdownConverter()}
}

// DetailText strips page chrome, keeps includeTags when they match, and
// returns description and Markdown each bounded to maxRunes.
//
// Flow:
//  1. Remove noise selectors, narrow to includeTags.
//  2. Readability for the description; filtered text when it fails.
//  3. Markdown of the filtered HTML for the raw view.
func (c *Cleaner) DetailText(rawHTML, sourceURL string, includeTags []string, maxRunes int) Detail {
	filtered := FilterContent(rawHTML, includeTags, noiseSelectors)

	var desc string
	if article, ok := ExtractContent(filtered, sourceURL); ok {
		desc = article.TextContent
	} else {
		desc = plainText(filtered)
	}
	desc = TruncateRunes(collapseSpace(desc), maxRunes)

	raw, err := ToMarkdown(c.mdConverter, filtered, domainOf(sourceURL))
	if err != nil {
		slog.Debug("markdown conversion failed, using plain text", "url", sourceURL, "error", err)
		raw = plainText(filtered)
	}
	raw = TruncateRunes(strings.TrimSpace(raw), maxRunes)

	return Detail{
		Description: desc,
		Raw:         raw,
		Tokens:      EstimateTokens(desc) + EstimateTokens(raw),
	}
}

func plainText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return collapseSpace(doc.Text())
}

// collapseSpace folds runs of whitespace into single spaces.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func domainOf(sourceURL string) string {
	u, err := nurl.Parse(sourceURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
