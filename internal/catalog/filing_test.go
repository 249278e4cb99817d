package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/filingindex/internal/model"
	"github.com/roach88/filingindex/internal/parse"
)

func TestLoadability(t *testing.T) {
	tests := []struct {
		name     string
		errs     []model.CatalogError
		loadable bool
		loadErr  string
	}{
		{name: "no errors", loadable: true},
		{name: "warnings only", errs: []model.CatalogError{{Severity: "WARNING", Code: "ESEF.2.2.1.precisionAttributeUsed"}}, loadable: true},
		{name: "prefixed fatal", errs: []model.CatalogError{
			{Severity: "ERROR", Code: "ESEF.1.calc"},
			{Severity: "ERROR", Code: "tpe:invalidDirectoryStructure"},
			{Severity: "ERROR", Code: "IOerror"},
		}, loadable: false, loadErr: "tpe:invalidDirectoryStructure"},
		{name: "bare fatal", errs: []model.CatalogError{{Code: "FileNotFoundError"}}, loadable: false, loadErr: "FileNotFoundError"},
		{name: "substring is not a match", errs: []model.CatalogError{{Code: "xbrl:IOerrorish"}}, loadable: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loadable, loadErr := Loadability(tt.errs)
			assert.Equal(t, tt.loadable, loadable)
			assert.Equal(t, tt.loadErr, loadErr)
		})
	}
}

func TestBuildFiling(t *testing.T) {
	added := time.Date(2022, 4, 20, 10, 15, 30, 0, time.UTC)
	f, err := BuildFiling(parse.CatalogRecord{
		Key:           "529900ABCDEF1234567A/2021-12-31/ESEF/FR/1",
		LEI:           "529900ABCDEF1234567A",
		Country:       "FR",
		System:        "ESEF",
		Added:         "2022-04-20 10:15:30",
		Date:          "2021-12-31",
		ReportPackage: "/529900ABCDEF1234567A/2021-12-31/ESEF/FR/1/acme.zip",
		Errors:        []model.CatalogError{{Severity: "ERROR", Code: "tpe:invalidArchiveFormat"}},
		Langs:         []string{"fr", "en"},
	})
	require.NoError(t, err)
	assert.Equal(t, "529900ABCDEF1234567A/2021-12-31/ESEF/FR", f.FilingRoot)
	assert.Equal(t, 1, f.FilingNumber)
	assert.False(t, f.IsLoadable)
	assert.Equal(t, "tpe:invalidArchiveFormat", f.LoadError)
	assert.Equal(t, added, f.DateAdded)
	assert.Equal(t, time.Date(2021, 12, 31, 0, 0, 0, 0, time.UTC), f.ReportDate)
	assert.Equal(t, []model.FilingLang{{Lang: "fr", LangName: "French"}, {Lang: "en", LangName: "English"}}, f.Languages)
	assert.Empty(t, f.InferredLanguages)

	_, err = BuildFiling(parse.CatalogRecord{Key: "no-number/x"})
	assert.True(t, model.IsCode(err, model.ErrCodeBadType))

	_, err = BuildFiling(parse.CatalogRecord{Key: "529900ABCDEF1234567A/2021-12-31/ESEF/FR/2", Added: "05/01/2023 10:00"})
	assert.True(t, model.IsCode(err, model.ErrCodeBadDateFormat))
}
