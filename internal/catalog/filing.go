package catalog

import (
	"fmt"
	"strings"

	"github.com/roach88/filingindex/internal/model"
	"github.com/roach88/filingindex/internal/parse"
)

// FatalLoadErrors are the catalog error codes that mean the report package
// cannot be opened. Codes are matched on the part after the last ":".
var FatalLoadErrors = map[string]bool{
	"invalidDirectoryStructure": true,
	"metadataDirectoryNotFound": true,
	"invalidArchiveFormat":      true,
	"invalidMetaDataFile":       true,
	"IOerror":                   true,
	"FileNotFoundError":         true,
}

// Loadability reports whether a filing with errs can be loaded, and the
// full code of the first fatal error when it cannot.
func Loadability(errs []model.CatalogError) (bool, string) {
	for _, e := range errs {
		code := e.Code
		if i := strings.LastIndex(code, ":"); i >= 0 {
			code = code[i+1:]
		}
		if FatalLoadErrors[code] {
			return false, e.Code
		}
	}
	return true, ""
}

// BuildFiling maps a catalog record onto the stored filing shape.
// Inferred languages are left for the caller.
func BuildFiling(rec parse.CatalogRecord) (model.CatalogFiling, error) {
	root, number, err := parse.SplitKey(rec.Key)
	if err != nil {
		return model.CatalogFiling{}, err
	}
	added, err := parse.ParseCatalogTime(rec.Added)
	if err != nil {
		return model.CatalogFiling{}, fmt.Errorf("filing %s added: %w", rec.Key, err)
	}
	reportDate, err := parse.ParseCatalogTime(rec.Date)
	if err != nil {
		return model.CatalogFiling{}, fmt.Errorf("filing %s date: %w", rec.Key, err)
	}
	loadable, loadErr := Loadability(rec.Errors)
	return model.CatalogFiling{
		FilingKey:        rec.Key,
		FilingRoot:       root,
		FilingNumber:     number,
		EntityLEI:        rec.LEI,
		Country:          rec.Country,
		FilingSystem:     rec.System,
		DateAdded:        added,
		ReportDate:       reportDate,
		XBRLJSONInstance: rec.XBRLJSON,
		ReportPackage:    rec.ReportPackage,
		ReportDocument:   rec.Report,
		ViewerDocument:   rec.Viewer,
		IsLoadable:       loadable,
		LoadError:        loadErr,
		Errors:           rec.Errors,
		Languages:        parse.DeclaredLanguages(rec.Langs),
	}, nil
}
