package domain

import (
	"time"

	"github.com/google/uuid"
)

// ContentRecord is one generated, queued unit of content for a domain.
// Records are immutable after creation; amendments produce a new record.
type ContentRecord struct {
	ID uuid.UUID

	Domain   string
	Category string

	Topic           string
	Title           string
	Body            string
	MetaDescription string
	Keywords        []string
	Images          []Image

	CreatedAt time.Time
}

// Image is a fetched image candidate. Immutable once fetched; the scorer
// ranks candidates but never mutates them.
type Image struct {
	URL            string
	ThumbnailURL   string
	Name           string
	AltText        string
	Width          int
	Height         int
	Format         string
	HostPageURL    string
	FamilyFriendly bool
	Source         string
}
