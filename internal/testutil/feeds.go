package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// FeedItem describes one item of a generated XBRL RSS document.
type FeedItem struct {
	Accession string
	CIK       string
	Company   string
	Form      string
	Pub       time.Time
	Accepted  time.Time
	Files     int
	SIC       int
}

const rssTime = "Mon, 02 Jan 2006 15:04:05 -0700"

// RSSFeed renders an EDGAR XBRL RSS document. Zero Accepted defaults to
// Pub; zero Files gives one instance document; zero SIC gives 3714.
func RSSFeed(lastBuild time.Time, items ...FeedItem) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>
<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom" xmlns:edgar="https://www.sec.gov/Archives/edgar">
<channel>
<title>XBRL test feed</title>
<link>https://www.sec.gov/Archives/edgar/monthly/</link>
<atom:link href="https://www.sec.gov/Archives/edgar/monthly/test.xml" rel="self"/>
<description>test</description>
<language>en-us</language>
`)
	fmt.Fprintf(&b, "<pubDate>%s</pubDate>\n<lastBuildDate>%s</lastBuildDate>\n",
		lastBuild.Format(rssTime), lastBuild.Format(rssTime))
	for _, it := range items {
		accepted := it.Accepted
		if accepted.IsZero() {
			accepted = it.Pub
		}
		company := it.Company
		if company == "" {
			company = "COMPANY " + it.CIK
		}
		form := it.Form
		if form == "" {
			form = "10-K"
		}
		sic := it.SIC
		if sic == 0 {
			sic = 3714
		}
		files := it.Files
		if files == 0 {
			files = 1
		}
		base := "https://www.sec.gov/Archives/edgar/data/" + it.CIK + "/" + it.Accession
		fmt.Fprintf(&b, `<item>
<title>%s (%s) (Filer)</title>
<link>%s-index.htm</link>
<enclosure url="%s-xbrl.zip" length="1000" type="application/zip"/>
<description>%s</description>
<pubDate>%s</pubDate>
<edgar:xbrlFiling>
<edgar:companyName>%s</edgar:companyName>
<edgar:formType>%s</edgar:formType>
<edgar:filingDate>%s</edgar:filingDate>
<edgar:cikNumber>%s</edgar:cikNumber>
<edgar:accessionNumber>%s</edgar:accessionNumber>
<edgar:acceptanceDatetime>%s</edgar:acceptanceDatetime>
<edgar:period>%s</edgar:period>
<edgar:assignedSic>%d</edgar:assignedSic>
<edgar:xbrlFiles>
`, company, it.CIK, base, base, form, it.Pub.Format(rssTime), company, form,
			it.Pub.UTC().Format("01/02/2006"), it.CIK, it.Accession,
			accepted.UTC().Format("20060102150405"), it.Pub.UTC().Format("20060102"), sic)
		for i := 1; i <= files; i++ {
			typ := "EX-101.INS"
			if i > 1 {
				typ = "EX-101.SCH"
			}
			fmt.Fprintf(&b, `<edgar:xbrlFile edgar:sequence="%d" edgar:file="f%d.xml" edgar:type="%s" edgar:size="10" edgar:url="%s/f%d.xml"/>
`, i, i, typ, base, i)
		}
		b.WriteString("</edgar:xbrlFiles>\n</edgar:xbrlFiling>\n</item>\n")
	}
	b.WriteString("</channel>\n</rss>\n")
	return []byte(b.String())
}

// MemLoader serves documents from memory and counts loads per uri.
type MemLoader struct {
	mu    sync.Mutex
	docs  map[string][]byte
	errs  map[string]error
	loads map[string]int
}

// NewMemLoader creates an empty loader.
func NewMemLoader() *MemLoader {
	return &MemLoader{docs: map[string][]byte{}, errs: map[string]error{}, loads: map[string]int{}}
}

// Set serves data for uri.
func (l *MemLoader) Set(uri string, data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.docs[uri] = data
	delete(l.errs, uri)
}

// Fail makes every load of uri return err.
func (l *MemLoader) Fail(uri string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs[uri] = err
}

// Loads reports how many times uri was requested.
func (l *MemLoader) Loads(uri string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads[uri]
}

// Fetch returns the document for uri.
func (l *MemLoader) Fetch(ctx context.Context, uri string) ([]byte, error) {
	return l.FetchFile(ctx, uri, true)
}

// FetchFile returns the document for uri; reload is ignored.
func (l *MemLoader) FetchFile(ctx context.Context, uri string, reload bool) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loads[uri]++
	if err, ok := l.errs[uri]; ok {
		return nil, err
	}
	data, ok := l.docs[uri]
	if !ok {
		return nil, fmt.Errorf("no document for %s", uri)
	}
	return data, nil
}
