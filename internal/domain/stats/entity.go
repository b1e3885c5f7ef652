package stats

import (
	"time"

	"github.com/google/uuid"
)

// IndexRow is one aggregated market-statistics row for a
// (date, district, propertyType, bedrooms) segment. Median is the
// nearest-rank median; quartiles are nil for segments with fewer than
// four priced listings.
type IndexRow struct {
	ID           uuid.UUID
	IndexDate    time.Time
	District     string
	PropertyType string
	Bedrooms     int
	ListingCount int
	MedianPrice  *int64
	P25Price     *int64
	P75Price     *int64
}
