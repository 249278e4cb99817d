package testutil

import (
	"fmt"
	"strings"
	"time"
)

// Company describes a generated EDGAR company atom document.
type Company struct {
	CIK           string
	Name          string
	SIC           int
	BusinessState string
	MailingState  string
	Incorporated  string

	// FormerNames maps a change date to the name used before it.
	FormerNames map[time.Time]string
}

// CompanyAtom renders the company-info block EDGAR serves for a CIK.
func CompanyAtom(c Company) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="ISO-8859-1" ?>
<feed xmlns="http://www.w3.org/2005/Atom">
<company-info>
<addresses>
`)
	fmt.Fprintf(&b, `<address type="mailing"><city>MAILTOWN</city><state>%s</state><zip>10001</zip></address>
<address type="business"><city>BIZTOWN</city><state>%s</state><zip>20002</zip></address>
</addresses>
<assigned-sic>%d</assigned-sic>
<assigned-sic-desc>INDUSTRY %d</assigned-sic-desc>
<cik>%s</cik>
<conformed-name>%s</conformed-name>
`, c.MailingState, c.BusinessState, c.SIC, c.SIC, c.CIK, c.Name)
	if len(c.FormerNames) > 0 {
		b.WriteString("<formerly-names>\n")
		for d, name := range c.FormerNames {
			fmt.Fprintf(&b, "<names><date>%s</date><name>%s</name></names>\n", d.Format("2006-01-02"), name)
		}
		b.WriteString("</formerly-names>\n")
	}
	fmt.Fprintf(&b, "<state-of-incorporation>%s</state-of-incorporation>\n</company-info>\n</feed>\n", c.Incorporated)
	return []byte(b.String())
}
