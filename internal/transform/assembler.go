// Package transform turns raw crawl records into canonical documents.
package transform

import (
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/clinicaltrials-harvester/internal/crawler"
	"github.com/JakeFAU/clinicaltrials-harvester/internal/datacite"
	"github.com/JakeFAU/clinicaltrials-harvester/internal/mapper"
	"github.com/JakeFAU/clinicaltrials-harvester/internal/metrics"
)

// ErrNoRecord is returned when asked to assemble an absent record.
var ErrNoRecord = errors.New("no record to assemble")

// Warning kinds reported to metrics.
const (
	WarningIdentityMismatch = "identity_mismatch"
	WarningDateParse        = "date_parse"
)

// Transformer converts a raw record into a canonical document.
type Transformer interface {
	Assemble(rec crawler.RawRecord) (datacite.Document, error)
}

// Assembler composes the mapper extractors into a Document. It holds no
// mutable state and is safe for concurrent use.
type Assembler struct {
	logger *zap.Logger
}

// NewAssembler builds an Assembler.
func NewAssembler(logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{logger: logger}
}

// Assemble maps rec into a Document. The identifier used to fetch the record
// is authoritative; a disagreeing identifier inside the record is logged.
func (a *Assembler) Assemble(rec crawler.RawRecord) (datacite.Document, error) {
	if !rec.Present() {
		return datacite.Document{}, ErrNoRecord
	}
	tree := rec.Tree

	id := rec.ID.String()
	if reported, ok := mapper.RecordIdentifier(tree).Get(); ok && reported != id {
		a.logger.Warn("record identifier mismatch",
			zap.String("id", id),
			zap.String("reported_id", reported),
		)
		metrics.ObserveWarning(WarningIdentityMismatch)
	}

	doc := datacite.New(id)
	doc.Titles = mapper.Titles(tree)
	doc.Descriptions = mapper.Descriptions(tree)
	doc.Dates = mapper.Dates(tree)
	doc.WebLinks = mapper.WebLinks(tree)
	doc.GeoLocations = mapper.GeoLocations(tree)
	doc.ResearchData = mapper.ResearchData(tree)
	doc.Contributors = mapper.Contributors(tree)
	doc.Subjects = mapper.Subjects(tree)
	doc.FundingReferences = mapper.FundingReferences(tree)
	doc.PublicationYear = a.publicationYear(id, mapper.FirstPosted(tree))
	doc.Normalize()

	return doc, nil
}

func (a *Assembler) publicationYear(id string, posted mapper.Maybe[string]) *int {
	value, ok := posted.Get()
	if !ok {
		return nil
	}
	year := mapper.ParseYear(value)
	if !year.Present() {
		a.logger.Warn("unparsable first posted date",
			zap.String("id", id),
			zap.String("value", value),
		)
		metrics.ObserveWarning(WarningDateParse)
	}
	return year.Ptr()
}
