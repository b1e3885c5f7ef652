package review

import (
	"time"

	"github.com/google/uuid"
)

type AiReview struct {
	ID         uuid.UUID
	ListingID  uuid.UUID
	Flagged    bool
	Confidence float64
	Reason     *string
	ReviewedAt time.Time
}
