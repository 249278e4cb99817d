package parse

import (
	"fmt"
	"sort"
	"strings"

	"github.com/segmentio/encoding/json"

	"github.com/roach88/filingindex/internal/model"
)

type gleifAddress struct {
	AddressLines []string `json:"addressLines"`
	City         string   `json:"city"`
	Country      string   `json:"country"`
	PostalCode   string   `json:"postalCode"`
}

type gleifRecords struct {
	Data []struct {
		Attributes struct {
			LEI    string `json:"lei"`
			Entity struct {
				LegalName struct {
					Name string `json:"name"`
				} `json:"legalName"`
				LegalAddress        gleifAddress `json:"legalAddress"`
				HeadquartersAddress gleifAddress `json:"headquartersAddress"`
				Category            string       `json:"category"`
				OtherNames          []struct {
					Name string `json:"name"`
					Type string `json:"type"`
				} `json:"otherNames"`
			} `json:"entity"`
		} `json:"attributes"`
	} `json:"data"`
}

// ParseLEIRecords decodes a GLEIF lei-records page. LocationCode and ISIN
// are left empty. Other names are deduplicated on (name, type) and a
// missing part is recorded as UNKNOWN.
func ParseLEIRecords(data []byte) ([]model.Entity, error) {
	var doc gleifRecords
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse lei records: %w", err)
	}

	out := make([]model.Entity, 0, len(doc.Data))
	for _, d := range doc.Data {
		a := d.Attributes
		if a.LEI == "" {
			continue
		}
		e := model.Entity{
			LEI:                 a.LEI,
			LegalName:           a.Entity.LegalName.Name,
			LegalAddressLines:   strings.Join(a.Entity.LegalAddress.AddressLines, " "),
			LegalAddressCity:    a.Entity.LegalAddress.City,
			LegalAddressCountry: a.Entity.LegalAddress.Country,
			LegalAddressPostal:  a.Entity.LegalAddress.PostalCode,
			HQAddressLines:      strings.Join(a.Entity.HeadquartersAddress.AddressLines, " "),
			HQAddressCity:       a.Entity.HeadquartersAddress.City,
			HQAddressCountry:    a.Entity.HeadquartersAddress.Country,
			HQAddressPostal:     a.Entity.HeadquartersAddress.PostalCode,
			Category:            a.Entity.Category,
		}
		seen := map[model.OtherName]bool{}
		for _, n := range a.Entity.OtherNames {
			on := model.OtherName{Name: orUnknown(n.Name), Type: orUnknown(n.Type)}
			if seen[on] {
				continue
			}
			seen[on] = true
			e.OtherNames = append(e.OtherNames, on)
		}
		sort.Slice(e.OtherNames, func(i, j int) bool {
			if e.OtherNames[i].Name != e.OtherNames[j].Name {
				return e.OtherNames[i].Name < e.OtherNames[j].Name
			}
			return e.OtherNames[i].Type < e.OtherNames[j].Type
		})
		out = append(out, e)
	}
	return out, nil
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "UNKNOWN"
	}
	return s
}

// ParseISINs returns the ISINs of a GLEIF isins page joined with ",".
func ParseISINs(data []byte) (string, error) {
	var doc struct {
		Data []struct {
			Attributes struct {
				ISIN string `json:"isin"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("parse isins: %w", err)
	}
	isins := make([]string, 0, len(doc.Data))
	for _, d := range doc.Data {
		if d.Attributes.ISIN != "" {
			isins = append(isins, d.Attributes.ISIN)
		}
	}
	return strings.Join(isins, ","), nil
}
