package parse

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/filingindex/internal/model"
)

type companyFeed struct {
	Info *companyInfo `xml:"company-info"`
}

type companyInfo struct {
	Addresses []struct {
		Type  string `xml:"type,attr"`
		City  string `xml:"city"`
		State string `xml:"state"`
		Zip   string `xml:"zip"`
	} `xml:"addresses>address"`
	AssignedSIC     string `xml:"assigned-sic"`
	AssignedSICDesc string `xml:"assigned-sic-desc"`
	CIK             string `xml:"cik"`
	ConformedName   string `xml:"conformed-name"`
	FormerNames     []struct {
		Date string `xml:"date"`
		Name string `xml:"name"`
	} `xml:"formerly-names>names"`
	StateOfIncorporation string `xml:"state-of-incorporation"`
}

// ParseCompanyInfo reads the company-info block of an EDGAR company atom
// document. Former names are returned newest first. Location and country
// are left for the caller to resolve.
func ParseCompanyInfo(data []byte) (model.Filer, error) {
	var doc companyFeed
	if err := newXMLDecoder(data).Decode(&doc); err != nil {
		return model.Filer{}, fmt.Errorf("parse company info: %w", err)
	}
	if doc.Info == nil {
		return model.Filer{}, model.Errorf(model.ErrCodeMissingData, "document has no company-info element")
	}
	info := doc.Info

	f := model.Filer{
		CIK:                  strings.TrimSpace(info.CIK),
		ConformedName:        strings.TrimSpace(info.ConformedName),
		IndustryDescription:  strings.TrimSpace(info.AssignedSICDesc),
		StateOfIncorporation: strings.TrimSpace(info.StateOfIncorporation),
	}
	if f.CIK == "" {
		return model.Filer{}, model.Errorf(model.ErrCodeMissingData, "company-info has no cik")
	}
	if s := strings.TrimSpace(info.AssignedSIC); s != "" {
		f.IndustryCode, _ = strconv.Atoi(s)
	}
	for _, a := range info.Addresses {
		switch strings.ToLower(strings.TrimSpace(a.Type)) {
		case "mailing":
			f.MailingCity = strings.TrimSpace(a.City)
			f.MailingState = strings.TrimSpace(a.State)
			f.MailingZip = strings.TrimSpace(a.Zip)
		case "business":
			f.BusinessCity = strings.TrimSpace(a.City)
			f.BusinessState = strings.TrimSpace(a.State)
			f.BusinessZip = strings.TrimSpace(a.Zip)
		}
	}

	for _, n := range info.FormerNames {
		date, err := parseLayout("2006-01-02", n.Date)
		if err != nil {
			// Some records carry full timestamps.
			date, err = parseLayout("2006-01-02T15:04:05", strings.TrimSpace(n.Date))
			if err != nil {
				return model.Filer{}, err
			}
			date = date.Truncate(24 * time.Hour)
		}
		f.FormerNames = append(f.FormerNames, model.FormerName{
			CIK:         f.CIK,
			Name:        strings.TrimSpace(n.Name),
			DateChanged: date,
		})
	}
	sort.SliceStable(f.FormerNames, func(i, j int) bool {
		return f.FormerNames[i].DateChanged.After(f.FormerNames[j].DateChanged)
	})
	return f, nil
}
