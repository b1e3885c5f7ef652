package listing

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type PropertyType string

const (
	PropertyCondo             PropertyType = "condo"
	PropertyApartment         PropertyType = "apartment"
	PropertyServicedApartment PropertyType = "serviced-apartment"
	PropertyPenthouse         PropertyType = "penthouse"
	PropertyHouse             PropertyType = "house"
	PropertyVilla             PropertyType = "villa"
	PropertyTownhouse         PropertyType = "townhouse"
)

func ParsePropertyType(s string) (PropertyType, bool) {
	switch PropertyType(strings.ToLower(strings.TrimSpace(s))) {
	case PropertyCondo:
		return PropertyCondo, true
	case PropertyApartment:
		return PropertyApartment, true
	case PropertyServicedApartment:
		return PropertyServicedApartment, true
	case PropertyPenthouse:
		return PropertyPenthouse, true
	case PropertyHouse:
		return PropertyHouse, true
	case PropertyVilla:
		return PropertyVilla, true
	case PropertyTownhouse:
		return PropertyTownhouse, true
	}
	return "", false
}

type Source struct {
	ID        uuid.UUID
	Name      string
	BaseURL   *string
	CreatedAt time.Time
}

type Listing struct {
	ID             uuid.UUID
	SourceID       uuid.UUID
	CanonicalURL   string
	PriceMonthly   *int64
	PropertyType   *string
	Bedrooms       *int
	Bathrooms      *int
	SizeSqm        *float64
	City           *string
	District       *string
	Latitude       *float64
	Longitude      *float64
	Title          *string
	RawTitle       *string
	Description    *string
	IsActive       bool
	TitleRewritten bool
	LastScrapedAt  time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Snapshot is the immutable observation of a listing at one scrape time.
// The owning listing's current fields mirror the snapshot with the
// greatest ScrapedAt.
type Snapshot struct {
	ID           uuid.UUID
	ListingID    uuid.UUID
	PriceMonthly *int64
	PropertyType *string
	District     *string
	Bedrooms     *int
	ScrapedAt    time.Time
	CreatedAt    time.Time
}

type QueueStatus string

const (
	QueuePending QueueStatus = "pending"
	QueueDone    QueueStatus = "done"
	QueueError   QueueStatus = "error"
)

type QueueEntry struct {
	ID           uuid.UUID
	SourceID     uuid.UUID
	URL          string
	Status       QueueStatus
	ErrorMessage *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
