package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

type ServicePackage struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Rate        decimal.Decimal `json:"rate"`
	Details     []string        `json:"details"`
}

// Catalog maps a category name to its ordered list of packages.
type Catalog map[string][]ServicePackage

type CompanyProfile struct {
	Name          string `json:"name"`
	Tagline       string `json:"tagline"`
	ContactMail   string `json:"contactMail"`
	ContactMobile string `json:"contactMobile"`
	Website       string `json:"website"`
}

// Settings is the per-user record holding the catalog, tax rate and company profile.
type Settings struct {
	Services       Catalog         `json:"services"`
	TaxRate        decimal.Decimal `json:"taxRate"`
	CompanyProfile CompanyProfile  `json:"companyProfile"`
}

func (p ServicePackage) Clone() ServicePackage {
	out := p
	out.Details = append([]string(nil), p.Details...)
	return out
}

func (c Catalog) Clone() Catalog {
	if c == nil {
		return nil
	}
	out := make(Catalog, len(c))
	for category, packages := range c {
		list := make([]ServicePackage, len(packages))
		for i, pkg := range packages {
			list[i] = pkg.Clone()
		}
		out[category] = list
	}
	return out
}

func (c Catalog) Find(category, id string) (ServicePackage, bool) {
	for _, pkg := range c[category] {
		if pkg.ID == id {
			return pkg.Clone(), true
		}
	}
	return ServicePackage{}, false
}

func (s Settings) Clone() Settings {
	out := s
	out.Services = s.Services.Clone()
	return out
}

// NormalizeDetails trims every detail line and drops the empty ones.
func NormalizeDetails(details []string) []string {
	result := make([]string, 0, len(details))
	for _, detail := range details {
		detail = strings.TrimSpace(detail)
		if detail != "" {
			result = append(result, detail)
		}
	}
	return result
}
