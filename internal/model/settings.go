package model

import "github.com/shopspring/decimal"

var DefaultTaxRate = decimal.RequireFromString("0.15")

func DefaultCompanyProfile() CompanyProfile {
	return CompanyProfile{
		Name:          "NUVOORA IT SOLUTIONS",
		Tagline:       "Shaping Tomorrow with a Fresh Vision.",
		ContactMail:   "info@nuvoora.com",
		ContactMobile: "+94 75 5111 360",
		Website:       "www.nuvoora.com",
	}
}

func DefaultCatalog() Catalog {
	return Catalog{
		"WordPress": {
			{ID: "wp-basic", Name: "Basic", Description: "Ideal for small businesses & startups.", Rate: decimal.NewFromInt(15000),
				Details: []string{"1 Landing page with 6 sections", "Responsive Design", "Basic SEO", "1 Revision"}},
			{ID: "wp-standard", Name: "Standard", Description: "Best for businesses needing a complete WordPress solution.", Rate: decimal.NewFromInt(25000),
				Details: []string{"Up to 5 pages", "Custom Theme & Plugins", "Speed Optimization", "1 Revision"}},
			{ID: "wp-premium", Name: "Premium", Description: "Perfect for businesses requiring advanced functionality.", Rate: decimal.NewFromInt(60000),
				Details: []string{"6-10 pages", "E-Commerce Setup", "Security Optimization", "2 Revisions"}},
		},
		"Websites": {
			{ID: "web-small", Name: "Small Business Site", Description: "Static marketing site (up to 5 pages).", Rate: decimal.NewFromInt(45000),
				Details: []string{"Tailwind CSS", "Fast Hosting Setup", "Basic Contact Form"}},
		},
		"MobileApps": {
			{ID: "app-mvp", Name: "Mobile App MVP", Description: "Cross-platform minimal viable product.", Rate: decimal.NewFromInt(120000),
				Details: []string{"React Native or Flutter", "3 Core Screens", "Basic Authentication"}},
		},
		"UIUX": {
			{ID: "ui-wire", Name: "Wireframing & Prototyping", Description: "Figma wireframes and interactive prototype.", Rate: decimal.NewFromInt(30000),
				Details: []string{"5 Page Screens", "Design System Basic", "User Flow Documentation"}},
		},
	}
}

// DefaultSettings is written for a user the first time they sign in.
func DefaultSettings() Settings {
	return Settings{
		Services:       DefaultCatalog(),
		TaxRate:        DefaultTaxRate,
		CompanyProfile: DefaultCompanyProfile(),
	}
}
