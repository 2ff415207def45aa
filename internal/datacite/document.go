// Package datacite defines the canonical document produced for every harvested
// record. Field names and JSON keys are a compatibility contract with
// downstream consumers and must not change.
package datacite

// Constant values shared by every document from the registry.
const (
	Publisher = "U.S. National Library of Medicine"
	Language  = "en"

	LogoURL       = "https://clinicaltrials.gov/ct2/html/images/ct.gov-logo.png"
	ViewLinkLabel = "Study Record Detail"
)

// DateType tags a Date.
type DateType string

// Date type tags.
const (
	DateSubmitted DateType = "Submitted"
	DateAvailable DateType = "Available"
	DateUpdated   DateType = "Updated"
)

// LinkType tags a WebLink.
type LinkType string

// Web link type tags.
const (
	LinkViewURL LinkType = "ViewURL"
	LinkLogoURL LinkType = "LogoURL"
)

// ContributorRole tags a Contributor.
type ContributorRole string

// RoleContactPerson is the only role the registry exposes.
const RoleContactPerson ContributorRole = "ContactPerson"

// Title is one study title.
type Title struct {
	Text string `json:"text"`
}

// Description is one free-text description.
type Description struct {
	Text string `json:"text"`
}

// Date is a raw date string with its tag. Values are kept as published.
type Date struct {
	Value   string   `json:"value"`
	TypeTag DateType `json:"typeTag"`
}

// WebLink points at a human-facing page or asset.
type WebLink struct {
	URL     string   `json:"url"`
	Name    string   `json:"name"`
	TypeTag LinkType `json:"typeTag"`
}

// GeoLocation names a place where the study runs.
type GeoLocation struct {
	PlaceName string `json:"placeName"`
}

// ResearchData references an attached study document.
type ResearchData struct {
	URL   string `json:"url"`
	Label string `json:"label"`
}

// Contributor is a named person attached to the study.
type Contributor struct {
	Name    string          `json:"name"`
	RoleTag ContributorRole `json:"roleTag"`
}

// Subject is a keyword, MeSH term, or status label.
type Subject struct {
	Label string `json:"label"`
}

// FundingReference names a sponsor.
type FundingReference struct {
	FunderName string `json:"funderName"`
}

// Document is the normalized form of one registry record.
type Document struct {
	Identifier        string             `json:"identifier"`
	Publisher         string             `json:"publisher"`
	Language          string             `json:"language"`
	Titles            []Title            `json:"titles"`
	Descriptions      []Description      `json:"descriptions"`
	Dates             []Date             `json:"dates"`
	WebLinks          []WebLink          `json:"webLinks"`
	GeoLocations      []GeoLocation      `json:"geoLocations"`
	ResearchData      []ResearchData     `json:"researchData"`
	Contributors      []Contributor      `json:"contributors"`
	Subjects          []Subject          `json:"subjects"`
	FundingReferences []FundingReference `json:"fundingReferences"`
	PublicationYear   *int               `json:"publicationYear"`
}

// New returns a Document for identifier with the constant fields set and
// every list empty but non-nil.
func New(identifier string) Document {
	return Document{
		Identifier:        identifier,
		Publisher:         Publisher,
		Language:          Language,
		Titles:            []Title{},
		Descriptions:      []Description{},
		Dates:             []Date{},
		WebLinks:          []WebLink{},
		GeoLocations:      []GeoLocation{},
		ResearchData:      []ResearchData{},
		Contributors:      []Contributor{},
		Subjects:          []Subject{},
		FundingReferences: []FundingReference{},
	}
}

// Normalize replaces nil lists with empty ones so the JSON encoding always
// carries arrays.
func (d *Document) Normalize() {
	if d.Titles == nil {
		d.Titles = []Title{}
	}
	if d.Descriptions == nil {
		d.Descriptions = []Description{}
	}
	if d.Dates == nil {
		d.Dates = []Date{}
	}
	if d.WebLinks == nil {
		d.WebLinks = []WebLink{}
	}
	if d.GeoLocations == nil {
		d.GeoLocations = []GeoLocation{}
	}
	if d.ResearchData == nil {
		d.ResearchData = []ResearchData{}
	}
	if d.Contributors == nil {
		d.Contributors = []Contributor{}
	}
	if d.Subjects == nil {
		d.Subjects = []Subject{}
	}
	if d.FundingReferences == nil {
		d.FundingReferences = []FundingReference{}
	}
}
