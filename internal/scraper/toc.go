package scraper

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Link is one table-of-contents entry from the preview viewer.
type Link struct {
	Index int
	Href  string
	Label string
}

var firstInteger = regexp.MustCompile(`-?\d+`)

// parseTOCLinks extracts anchor entries from the contents markup, resolving
// relative hrefs against the page URL. Anchors without an href or without
// visible text are skipped.
func parseTOCLinks(tocHTML, pageURL string) ([]Link, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(tocHTML))
	if err != nil {
		return nil, fmt.Errorf("parse contents markup: %w", err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	var links []Link
	doc.Find("a").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}
		label := strings.TrimSpace(sel.Text())
		if label == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		links = append(links, Link{
			Index: len(links),
			Href:  base.ResolveReference(ref).String(),
			Label: label,
		})
	})
	return links, nil
}

// stripPrintsec removes the printsec query parameter, which locks the viewer
// to the front-cover section and hides the contents pane.
func stripPrintsec(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	query := parsed.Query()
	if _, ok := query["printsec"]; !ok {
		return rawURL
	}
	query.Del("printsec")
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

// sectionURL tags a contents link with the second-round markers so the
// viewer opens directly on the chosen section. pageNumber is the capture
// page selector ("1" or "2"), not the section's contents index.
func sectionURL(href, pageNumber string) string {
	parsed, err := url.Parse(href)
	if err != nil {
		return href
	}
	query := parsed.Query()
	query.Set("scrapeStep", "2")
	query.Set("pageNumber", pageNumber)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

// sectionPrompt asks the model to pick the contents entry where the book's
// story begins, answering with a bare list index.
func sectionPrompt(labels []string) string {
	var sb strings.Builder
	sb.WriteString("Here is the table of contents of a book, one entry per line, numbered from 0:\n")
	for i, label := range labels {
		fmt.Fprintf(&sb, "%d. %s\n", i, label)
	}
	sb.WriteString("Which entry is the beginning of the book's actual content ")
	sb.WriteString("(the first chapter or equivalent, not front matter like a copyright page or the contents itself)? ")
	sb.WriteString("Answer with the entry number only.")
	return sb.String()
}

// parseSectionIndex reads the model's section choice: the first integer in
// the reply, which must index into the list. Anything else means the model
// found no real content entry, which is treated as no usable preview.
func parseSectionIndex(reply string, count int) (int, error) {
	match := firstInteger.FindString(reply)
	if match == "" {
		return 0, ErrNoPreview
	}
	idx, err := strconv.Atoi(match)
	if err != nil || idx < 0 || idx >= count {
		return 0, ErrNoPreview
	}
	return idx, nil
}
