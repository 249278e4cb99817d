package fetch

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/roach88/filingindex/internal/model"
)

// Entry is one monthly feed offered by the listing.
type Entry struct {
	// FeedID is the period id YYYYMM.
	FeedID int64

	// FeedDate is the last day of the feed's month, or today when that
	// day is still in the future.
	FeedDate time.Time

	URI          string
	LastModified time.Time

	// IsLastMonth flags the most recent entry of the listing.
	IsLastMonth bool
}

var (
	feedNamePattern     = regexp.MustCompile(`^xbrlrss-(\d{4})-(\d{2})\.xml`)
	feedFileNamePattern = regexp.MustCompile(`^xbrlrss-(\d{4})-(\d{2})(_\d)?\.xml`)
)

// listingTimeLayouts are the last-modified formats seen in directory
// listings.
var listingTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"01/02/2006 03:04:05 PM",
	"01/02/2006 15:04:05",
	"02-Jan-2006 15:04",
	"02-Jan-2006 15:04:05",
	time.RFC3339,
	time.RFC1123,
	time.RFC1123Z,
}

// List returns the monthly feed entries of a listing, sorted by feed date
// ascending with the newest flagged IsLastMonth. The locator is an HTML
// directory page (http, https or file) or a file:// directory.
func (c *Client) List(ctx context.Context, locator string) ([]Entry, error) {
	u, err := url.Parse(locator)
	if err != nil {
		return nil, model.WrapError(model.ErrCodeBadConnectionParameters, "parse listing locator", err)
	}

	var entries []Entry
	if u.Scheme == "file" {
		path := filePath(u)
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			entries, err = c.listDir(path, u)
			if err != nil {
				return nil, err
			}
			return c.finish(entries), nil
		}
	}

	page, err := c.load(ctx, locator)
	if err != nil {
		return nil, err
	}
	pattern := feedNamePattern
	if u.Scheme == "file" {
		pattern = feedFileNamePattern
	}
	entries, err = c.parseListing(page, u, pattern)
	if err != nil {
		return nil, err
	}
	return c.finish(entries), nil
}

func (c *Client) listDir(dir string, base *url.URL) ([]Entry, error) {
	items, err := os.ReadDir(dir)
	if err != nil {
		return nil, model.WrapError(model.ErrCodeDocumentNotFound, "read listing dir", err)
	}
	var entries []Entry
	for _, it := range items {
		if it.IsDir() {
			continue
		}
		info, err := it.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", it.Name(), err)
		}
		e, ok := c.entry(it.Name(), feedFileNamePattern, base, info.ModTime())
		if ok {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// parseListing reads the rows of a directory page: a link in the first
// cell and the last-modified stamp in the third.
func (c *Client) parseListing(page []byte, base *url.URL, pattern *regexp.Regexp) ([]Entry, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}

	var entries []Entry
	stack := []*html.Node{doc}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.Type == html.ElementNode && n.DataAtom == atom.Tr {
			if e, ok := c.rowEntry(n, base, pattern); ok {
				entries = append(entries, e)
			}
			continue
		}
		for ch := n.LastChild; ch != nil; ch = ch.PrevSibling {
			stack = append(stack, ch)
		}
	}
	return entries, nil
}

func (c *Client) rowEntry(tr *html.Node, base *url.URL, pattern *regexp.Regexp) (Entry, bool) {
	var cells []*html.Node
	for ch := tr.FirstChild; ch != nil; ch = ch.NextSibling {
		if ch.Type == html.ElementNode && ch.DataAtom == atom.Td {
			cells = append(cells, ch)
		}
	}
	if len(cells) < 3 {
		return Entry{}, false
	}
	href := firstHref(cells[0])
	if href == "" {
		return Entry{}, false
	}
	modified, ok := parseListingTime(textOf(cells[2]))
	if !ok {
		c.config.Logger.Debug("Skipping listing row without a readable date", "href", href)
		return Entry{}, false
	}
	name := href[strings.LastIndex(href, "/")+1:]
	e, ok := c.entry(name, pattern, base, modified)
	if !ok {
		return Entry{}, false
	}
	if ref, err := url.Parse(href); err == nil {
		e.URI = base.ResolveReference(ref).String()
	}
	return e, true
}

func (c *Client) entry(name string, pattern *regexp.Regexp, base *url.URL, modified time.Time) (Entry, bool) {
	m := pattern.FindStringSubmatch(name)
	if m == nil {
		return Entry{}, false
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 {
		return Entry{}, false
	}
	ref := &url.URL{Path: name}
	return Entry{
		FeedID:       int64(year*100 + month),
		FeedDate:     FeedDate(year, time.Month(month), c.config.Now()),
		URI:          base.ResolveReference(ref).String(),
		LastModified: modified.UTC().Truncate(time.Second),
	}, true
}

func (c *Client) finish(entries []Entry) []Entry {
	if entries == nil {
		entries = []Entry{}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].FeedDate.Equal(entries[j].FeedDate) {
			return entries[i].FeedDate.Before(entries[j].FeedDate)
		}
		return entries[i].URI < entries[j].URI
	})
	if len(entries) > 0 {
		entries[len(entries)-1].IsLastMonth = true
	}
	c.config.Logger.Info("Retrieved feed links", "count", len(entries))
	return entries
}

// FeedDate returns the last day of the month, or today's day of that
// month when the month end is after now.
func FeedDate(year int, month time.Month, now time.Time) time.Time {
	end := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
	now = now.UTC()
	if end.After(now) {
		day := min(now.Day(), end.Day())
		return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	}
	return end
}

func parseListingTime(s string) (time.Time, bool) {
	s = strings.Join(strings.Fields(s), " ")
	for _, layout := range listingTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func firstHref(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.A {
		for _, a := range n.Attr {
			if a.Key == "href" {
				return strings.TrimSpace(a.Val)
			}
		}
	}
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		if h := firstHref(ch); h != "" {
			return h
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}
