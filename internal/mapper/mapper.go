// Package mapper extracts canonical document fields from a ClinicalTrials.gov
// display record. Every extractor is pure and fail-soft: a missing node yields
// an empty list or an absent Maybe, never an error.
package mapper

import (
	"strings"
	"time"

	"github.com/antchfx/xmlquery"

	"github.com/JakeFAU/clinicaltrials-harvester/internal/datacite"
)

// Node paths in the display record.
const (
	PathBriefTitle          = "//brief_title"
	PathOfficialTitle       = "//official_title"
	PathDetailedDescription = "//detailed_description"
	PathFirstSubmitted      = "//study_first_submitted"
	PathFirstPosted         = "//study_first_posted"
	PathLastUpdatePosted    = "//last_update_posted"
	PathRecordURL           = "//required_header/url"
	PathCountry             = "//country"
	PathDocumentURL         = "//document_url"
	PathOverallContact      = "//overall_contact"
	PathKeyword             = "//keyword"
	PathConditionMesh       = "//condition_browse/mesh_term"
	PathInterventionMesh    = "//intervention_browse/mesh_term"
	PathOverallStatus       = "//overall_status"
	PathSponsors            = "//sponsors/*"
	PathRecordIdentifier    = "//id_info/nct_id"

	childAgency   = "agency"
	childLastName = "last_name"
)

// DateLayouts are tried in order when parsing a posted date.
var DateLayouts = []string{"Jan 2, 2006", "January 2, 2006"}

type datePath struct {
	path string
	tag  datacite.DateType
}

var datePaths = []datePath{
	{PathFirstSubmitted, datacite.DateSubmitted},
	{PathFirstPosted, datacite.DateAvailable},
	{PathLastUpdatePosted, datacite.DateUpdated},
}

// Titles returns the brief title then the official title, each when present.
func Titles(tree *xmlquery.Node) []datacite.Title {
	out := []datacite.Title{}
	for _, path := range []string{PathBriefTitle, PathOfficialTitle} {
		if text, ok := lookup(tree, path).Get(); ok {
			out = append(out, datacite.Title{Text: text})
		}
	}
	return out
}

// Descriptions returns the detailed description, nested text included.
func Descriptions(tree *xmlquery.Node) []datacite.Description {
	out := []datacite.Description{}
	if text, ok := lookup(tree, PathDetailedDescription).Get(); ok {
		out = append(out, datacite.Description{Text: text})
	}
	return out
}

// Dates returns the submitted, first posted, and last updated dates that are
// present, tagged by source.
func Dates(tree *xmlquery.Node) []datacite.Date {
	out := []datacite.Date{}
	for _, dp := range datePaths {
		if value, ok := lookup(tree, dp.path).Get(); ok {
			out = append(out, datacite.Date{Value: value, TypeTag: dp.tag})
		}
	}
	return out
}

// WebLinks returns one ViewURL per record URL node followed by the logo link.
func WebLinks(tree *xmlquery.Node) []datacite.WebLink {
	urls := selectAll(tree, PathRecordURL)
	out := make([]datacite.WebLink, 0, len(urls)+1)
	for _, u := range urls {
		out = append(out, datacite.WebLink{URL: u, Name: datacite.ViewLinkLabel, TypeTag: datacite.LinkViewURL})
	}
	return append(out, LogoLink())
}

// LogoLink is the constant registry logo entry.
func LogoLink() datacite.WebLink {
	return datacite.WebLink{URL: datacite.LogoURL, Name: "Logo", TypeTag: datacite.LinkLogoURL}
}

// GeoLocations returns one entry per country element anywhere in the record,
// including facility addresses and removed countries.
func GeoLocations(tree *xmlquery.Node) []datacite.GeoLocation {
	countries := selectAll(tree, PathCountry)
	out := make([]datacite.GeoLocation, 0, len(countries))
	for _, c := range countries {
		out = append(out, datacite.GeoLocation{PlaceName: c})
	}
	return out
}

// ResearchData returns one entry per document URL, labeled by its extension.
func ResearchData(tree *xmlquery.Node) []datacite.ResearchData {
	urls := selectAll(tree, PathDocumentURL)
	out := make([]datacite.ResearchData, 0, len(urls))
	for _, u := range urls {
		out = append(out, datacite.ResearchData{URL: u, Label: extensionLabel(u)})
	}
	return out
}

// extensionLabel returns the text after the last '.', or "" when there is none.
func extensionLabel(u string) string {
	i := strings.LastIndexByte(u, '.')
	if i < 0 {
		return ""
	}
	return u[i+1:]
}

// Contributors returns one contact person per overall contact, named by the
// contact's last_name child or, failing that, the contact's full text.
func Contributors(tree *xmlquery.Node) []datacite.Contributor {
	nodes := findAll(tree, PathOverallContact)
	out := make([]datacite.Contributor, 0, len(nodes))
	for _, n := range nodes {
		name := lookup(n, childLastName).OrElse(nodeText(n))
		out = append(out, datacite.Contributor{Name: name, RoleTag: datacite.RoleContactPerson})
	}
	return out
}

// Subjects returns keywords, then MeSH terms, then the overall status.
func Subjects(tree *xmlquery.Node) []datacite.Subject {
	out := []datacite.Subject{}
	for _, path := range []string{PathKeyword, PathConditionMesh, PathInterventionMesh, PathOverallStatus} {
		for _, label := range selectAll(tree, path) {
			out = append(out, datacite.Subject{Label: label})
		}
	}
	return out
}

// FundingReferences returns one funder per sponsor with an agency child.
// Sponsors without one are dropped.
func FundingReferences(tree *xmlquery.Node) []datacite.FundingReference {
	out := []datacite.FundingReference{}
	for _, sponsor := range findAll(tree, PathSponsors) {
		if name, ok := lookup(sponsor, childAgency).Get(); ok {
			out = append(out, datacite.FundingReference{FunderName: name})
		}
	}
	return out
}

// FirstPosted returns the raw first posted date.
func FirstPosted(tree *xmlquery.Node) Maybe[string] {
	return lookup(tree, PathFirstPosted)
}

// ParseYear parses value against DateLayouts and returns its year.
func ParseYear(value string) Maybe[int] {
	value = strings.TrimSpace(value)
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return Some(t.Year())
		}
	}
	return None[int]()
}

// PublicationYear returns the year of the first posted date, absent when the
// date is missing or unparsable.
func PublicationYear(tree *xmlquery.Node) Maybe[int] {
	value, ok := FirstPosted(tree).Get()
	if !ok {
		return None[int]()
	}
	return ParseYear(value)
}

// RecordIdentifier returns the identifier the record reports for itself.
func RecordIdentifier(tree *xmlquery.Node) Maybe[string] {
	return lookup(tree, PathRecordIdentifier)
}

// lookup returns the trimmed text of the first node matching path. The node's
// presence, not its text, decides presence.
func lookup(tree *xmlquery.Node, path string) Maybe[string] {
	if tree == nil {
		return None[string]()
	}
	n := xmlquery.FindOne(tree, path)
	if n == nil {
		return None[string]()
	}
	return Some(nodeText(n))
}

func findAll(tree *xmlquery.Node, path string) []*xmlquery.Node {
	if tree == nil {
		return nil
	}
	return xmlquery.Find(tree, path)
}

func selectAll(tree *xmlquery.Node, path string) []string {
	nodes := findAll(tree, path)
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, nodeText(n))
	}
	return out
}

func nodeText(n *xmlquery.Node) string {
	return strings.TrimSpace(n.InnerText())
}
