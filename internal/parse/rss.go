package parse

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/roach88/filingindex/internal/model"
)

const atomNS = "http://www.w3.org/2005/Atom"

// FeedDoc is one parsed XBRL RSS document.
type FeedDoc struct {
	Header model.Feed
	Items  []model.Filing
}

type rssDoc struct {
	Channel struct {
		Title         string    `xml:"title"`
		Links         []rssLink `xml:"link"`
		Description   string    `xml:"description"`
		Language      string    `xml:"language"`
		PubDate       string    `xml:"pubDate"`
		LastBuildDate string    `xml:"lastBuildDate"`
		Items         []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssLink struct {
	XMLName xml.Name
	Href    string `xml:"href,attr"`
	Text    string `xml:",chardata"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	Enclosure   struct {
		URL    string `xml:"url,attr"`
		Length string `xml:"length,attr"`
	} `xml:"enclosure"`
	Filing struct {
		CompanyName        string    `xml:"companyName"`
		FormType           string    `xml:"formType"`
		FilingDate         string    `xml:"filingDate"`
		CIKNumber          string    `xml:"cikNumber"`
		AccessionNumber    string    `xml:"accessionNumber"`
		FileNumber         string    `xml:"fileNumber"`
		AcceptanceDatetime string    `xml:"acceptanceDatetime"`
		Period             string    `xml:"period"`
		AssistantDirector  string    `xml:"assistantDirector"`
		AssignedSIC        string    `xml:"assignedSic"`
		FiscalYearEnd      string    `xml:"fiscalYearEnd"`
		Files              []rssFile `xml:"xbrlFiles>xbrlFile"`
	} `xml:"xbrlFiling"`
}

type rssFile struct {
	Sequence    string `xml:"sequence,attr"`
	File        string `xml:"file,attr"`
	Type        string `xml:"type,attr"`
	Size        string `xml:"size,attr"`
	Description string `xml:"description,attr"`
	InlineXBRL  string `xml:"inlineXBRL,attr"`
	URL         string `xml:"url,attr"`
}

// ParseFeed parses an EDGAR XBRL RSS document. Items keep document order
// and carry no surrogate ids.
func ParseFeed(data []byte) (FeedDoc, error) {
	var doc rssDoc
	if err := newXMLDecoder(data).Decode(&doc); err != nil {
		return FeedDoc{}, fmt.Errorf("parse feed: %w", err)
	}

	ch := doc.Channel
	out := FeedDoc{
		Header: model.Feed{
			Title:       strings.TrimSpace(ch.Title),
			Description: strings.TrimSpace(ch.Description),
			Language:    strings.TrimSpace(ch.Language),
		},
		Items: make([]model.Filing, 0, len(ch.Items)),
	}
	for _, l := range ch.Links {
		switch {
		case l.XMLName.Space == atomNS:
			out.Header.FeedLink = strings.TrimSpace(l.Href)
		case out.Header.Link == "":
			out.Header.Link = strings.TrimSpace(l.Text)
		}
	}
	var err error
	if out.Header.PubDate, err = ParseRSSTime(ch.PubDate); err != nil {
		return FeedDoc{}, fmt.Errorf("parse feed pubDate: %w", err)
	}
	if out.Header.LastBuildDate, err = ParseRSSTime(ch.LastBuildDate); err != nil {
		return FeedDoc{}, fmt.Errorf("parse feed lastBuildDate: %w", err)
	}

	for i, it := range ch.Items {
		f, err := convertItem(it)
		if err != nil {
			return FeedDoc{}, fmt.Errorf("parse feed item %d: %w", i, err)
		}
		out.Header.IncludedFilesCount += len(f.Files)
		out.Items = append(out.Items, f)
	}
	out.Header.IncludedFilingsCount = len(out.Items)
	return out, nil
}

func convertItem(it rssItem) (model.Filing, error) {
	x := it.Filing
	f := model.Filing{
		FilingLink:        strings.TrimSpace(it.Link),
		Title:             strings.TrimSpace(it.Title),
		Description:       strings.TrimSpace(it.Description),
		EnclosureURL:      strings.TrimSpace(it.Enclosure.URL),
		CompanyName:       strings.TrimSpace(x.CompanyName),
		FormType:          strings.TrimSpace(x.FormType),
		CIK:               strings.TrimSpace(x.CIKNumber),
		AccessionNumber:   strings.TrimSpace(x.AccessionNumber),
		FileNumber:        strings.TrimSpace(x.FileNumber),
		AssistantDirector: strings.TrimSpace(x.AssistantDirector),
		FiscalYearEnd:     strings.TrimSpace(x.FiscalYearEnd),
	}
	if f.AccessionNumber == "" || f.CIK == "" {
		return model.Filing{}, model.Errorf(model.ErrCodeMissingData, "item %q has no accession number or cik", f.Title)
	}

	var err error
	if f.PubDate, err = ParseRSSTime(it.PubDate); err != nil {
		return model.Filing{}, err
	}
	if f.FilingDate, err = parseLayout("01/02/2006", x.FilingDate); err != nil {
		return model.Filing{}, err
	}
	if f.AcceptanceDatetime, err = parseLayout("20060102150405", x.AcceptanceDatetime); err != nil {
		return model.Filing{}, err
	}
	if f.Period, err = parseLayout("20060102", x.Period); err != nil {
		return model.Filing{}, err
	}
	if s := strings.TrimSpace(it.Enclosure.Length); s != "" {
		f.EnclosureSize, _ = strconv.ParseInt(s, 10, 64)
	}
	if s := strings.TrimSpace(x.AssignedSIC); s != "" {
		f.AssignedSIC, _ = strconv.Atoi(s)
	}

	for i, rf := range x.Files {
		file := model.File{
			AccessionNumber: f.AccessionNumber,
			Sequence:        i + 1,
			File:            strings.TrimSpace(rf.File),
			Type:            strings.TrimSpace(rf.Type),
			Description:     strings.TrimSpace(rf.Description),
			InlineXBRL:      strings.EqualFold(strings.TrimSpace(rf.InlineXBRL), "true"),
			URL:             strings.TrimSpace(rf.URL),
		}
		if n, err := strconv.Atoi(strings.TrimSpace(rf.Sequence)); err == nil {
			file.Sequence = n
		}
		if s := strings.TrimSpace(rf.Size); s != "" {
			file.Size, _ = strconv.ParseInt(s, 10, 64)
		}
		file.TypeTag = FileTypeTag(file.Type, file.InlineXBRL)
		if file.InlineXBRL {
			f.InlineXBRL = true
		}
		if f.EntryPoint == "" && file.TypeTag == "INS" {
			f.EntryPoint = file.URL
		}
		f.Files = append(f.Files, file)
	}
	return f, nil
}

var fileTypeTags = map[string]string{
	"ins": "INS", "sch": "SCH", "cal": "CAL", "def": "DEF", "lab": "LAB", "pre": "PRE",
}

// FileTypeTag derives the role tag of an attachment from the last three
// characters of its type, falling back to INS for inline documents and
// OTHER for everything else.
func FileTypeTag(fileType string, inline bool) string {
	if len(fileType) >= 3 {
		if tag, ok := fileTypeTags[strings.ToLower(fileType[len(fileType)-3:])]; ok {
			return tag
		}
	}
	if inline {
		return "INS"
	}
	return "OTHER"
}

var zoneOffsets = strings.NewReplacer(" EST", " -0500", " EDT", " -0400")

// ParseRSSTime parses an RFC 1123 date as used in RSS. The US eastern
// zone abbreviations are mapped to their offsets. Empty input returns the
// zero time.
func ParseRSSTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	s = zoneOffsets.Replace(s)
	for _, layout := range []string{time.RFC1123Z, "Mon, 2 Jan 2006 15:04:05 -0700", time.RFC1123, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, model.Errorf(model.ErrCodeBadDateFormat, "unrecognized date %q", s)
}

// newXMLDecoder returns a lenient decoder that understands the legacy
// charsets EDGAR documents declare.
func newXMLDecoder(data []byte) *xml.Decoder {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.CharsetReader = charset.NewReaderLabel
	return dec
}

// parseLayout parses s in UTC. Empty input returns the zero time.
func parseLayout(layout, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(layout, s, time.UTC)
	if err != nil {
		return time.Time{}, model.WrapError(model.ErrCodeBadDateFormat, fmt.Sprintf("unrecognized date %q", s), err)
	}
	return t, nil
}
