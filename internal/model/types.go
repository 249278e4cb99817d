package model

import "time"

// Feed is one monthly batch of the SEC XBRL RSS archive.
type Feed struct {
	FeedID               int64
	FeedMonth            time.Time
	Title                string
	Link                 string
	FeedLink             string
	Description          string
	Language             string
	PubDate              time.Time
	LastBuildDate        time.Time
	IncludedFilingsCount int
	IncludedFilesCount   int
	LastModified         time.Time
}

// Filing is one item of a feed.
type Filing struct {
	FilingID           int64
	FeedID             int64
	FilingLink         string
	Title              string
	Description        string
	EntryPoint         string
	EnclosureURL       string
	EnclosureSize      int64
	PubDate            time.Time
	CompanyName        string
	FormType           string
	InlineXBRL         bool
	FilingDate         time.Time
	CIK                string
	AccessionNumber    string
	FileNumber         string
	AcceptanceDatetime time.Time
	Period             time.Time
	AssignedSIC        int
	AssistantDirector  string
	FiscalYearEnd      string
	Duplicate          bool
	Files              []File
}

// FilingKey is the tuple compared when deciding whether an item is new or changed.
type FilingKey struct {
	AccessionNumber    string
	EnclosureURL       string
	AcceptanceDatetime int64
	PubDate            int64
	CIK                string
}

// Key returns the comparison tuple of f. Times are reduced to unix seconds
// so that values read back from the store compare equal to parsed ones.
func (f Filing) Key() FilingKey {
	return FilingKey{
		AccessionNumber:    f.AccessionNumber,
		EnclosureURL:       f.EnclosureURL,
		AcceptanceDatetime: unixOrZero(f.AcceptanceDatetime),
		PubDate:            unixOrZero(f.PubDate),
		CIK:                f.CIK,
	}
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

// File is one attachment of a filing.
type File struct {
	FileID          int64
	FilingID        int64
	FeedID          int64
	AccessionNumber string
	Sequence        int
	File            string
	Type            string
	Size            int64
	Description     string
	InlineXBRL      bool
	URL             string
	TypeTag         string
	Duplicate       bool
}

// Filer is the SEC company record keyed by CIK.
type Filer struct {
	CIK                  string
	ConformedName        string
	IndustryCode         int
	IndustryDescription  string
	StateOfIncorporation string
	MailingState         string
	MailingCity          string
	MailingZip           string
	BusinessState        string
	BusinessCity         string
	BusinessZip          string
	LocationCode         string
	Country              string
	FormerNames          []FormerName
}

// FormerName is one entry of a filer's name history.
type FormerName struct {
	CIK         string
	Name        string
	DateChanged time.Time
}

// TickerMapping links a CIK to an exchange ticker.
type TickerMapping struct {
	CIK          string
	CompanyName  string
	TickerSymbol string
	Exchange     string
}

// CatalogFiling is one record of the ESEF filings index.
type CatalogFiling struct {
	FilingID         int64
	FilingKey        string
	FilingRoot       string
	FilingNumber     int
	EntityLEI        string
	Country          string
	FilingSystem     string
	FilingType       string
	DateAdded        time.Time
	ReportDate       time.Time
	XBRLJSONInstance string
	ReportPackage    string
	ReportDocument   string
	ViewerDocument   string
	IsLoadable       bool
	LoadError        string
	IsAmendedHint    bool
	OtherLangsHint   bool

	Errors            []CatalogError
	Languages         []FilingLang
	InferredLanguages []InferredLanguage
}

// CatalogError is one validation message reported by the catalog.
type CatalogError struct {
	Severity string
	Code     string
	Message  string
}

// FilingLang is a language declared by the catalog for a filing.
type FilingLang struct {
	Lang     string
	LangName string
}

// InferredLanguage is a language tallied from the filing's fact document.
type InferredLanguage struct {
	Lang          string
	LangName      string
	FactsInLang   int
	FactsInReport int
}

// Entity is the ESEF issuer record keyed by LEI.
type Entity struct {
	LEI                 string
	LocationCode        string
	LegalName           string
	LegalAddressLines   string
	LegalAddressCity    string
	LegalAddressCountry string
	LegalAddressPostal  string
	HQAddressLines      string
	HQAddressCity       string
	HQAddressCountry    string
	HQAddressPostal     string
	Category            string
	ISIN                string
	OtherNames          []OtherName
}

// OtherName is an alternative or previous legal name of an entity.
type OtherName struct {
	Name string
	Type string
}

// Location is a country or state code used by both schemas.
type Location struct {
	Code          string  `yaml:"code"`
	Country       string  `yaml:"country"`
	StateProvince string  `yaml:"state_province"`
	Alpha2        string  `yaml:"alpha_2"`
	Alpha3        string  `yaml:"alpha_3"`
	Numeric       string  `yaml:"numeric"`
	Lat           float64 `yaml:"lat"`
	Lon           float64 `yaml:"lon"`
}

// Industry is one node of an industry classification.
type Industry struct {
	ID             int64  `yaml:"id"`
	Classification string `yaml:"classification"`
	Code           int    `yaml:"code"`
	Description    string `yaml:"description"`
	Depth          int    `yaml:"depth"`
	ParentID       int64  `yaml:"parent_id"`
}
