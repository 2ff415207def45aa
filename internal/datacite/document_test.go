package datacite

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewSetsConstantsAndEmptyLists(t *testing.T) {
	t.Parallel()

	doc := New("NCT00000102")
	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	require.JSONEq(t, `{
		"identifier": "NCT00000102",
		"publisher": "U.S. National Library of Medicine",
		"language": "en",
		"titles": [],
		"descriptions": [],
		"dates": [],
		"webLinks": [],
		"geoLocations": [],
		"researchData": [],
		"contributors": [],
		"subjects": [],
		"fundingReferences": [],
		"publicationYear": null
	}`, string(raw))
}

func TestNormalizeFillsNilLists(t *testing.T) {
	t.Parallel()

	year := 2001
	doc := Document{
		Identifier:      "NCT00000001",
		Titles:          []Title{{Text: "Kept"}},
		PublicationYear: &year,
	}
	doc.Normalize()

	require.Equal(t, []Title{{Text: "Kept"}}, doc.Titles)
	require.NotNil(t, doc.Descriptions)
	require.NotNil(t, doc.Dates)
	require.NotNil(t, doc.WebLinks)
	require.NotNil(t, doc.GeoLocations)
	require.NotNil(t, doc.ResearchData)
	require.NotNil(t, doc.Contributors)
	require.NotNil(t, doc.Subjects)
	require.NotNil(t, doc.FundingReferences)

	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"publicationYear":2001`)
}

func TestItemTags(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(WebLink{URL: LogoURL, Name: "Logo", TypeTag: LinkLogoURL})
	require.NoError(t, err)
	require.JSONEq(t, `{"url":"`+LogoURL+`","name":"Logo","typeTag":"LogoURL"}`, string(raw))

	raw, err = json.Marshal(Date{Value: "Jan 2, 2020", TypeTag: DateAvailable})
	require.NoError(t, err)
	require.JSONEq(t, `{"value":"Jan 2, 2020","typeTag":"Available"}`, string(raw))
}
