package listing

import (
	"strings"
	"time"
)

// Stats holds the engagement counters for a listing. Counters never go
// below zero; decrements clamp.
type Stats struct {
	Views     int `json:"views"`
	Likes     int `json:"likes"`
	Favorites int `json:"favorites"`
	Reports   int `json:"reports"`
}

// Listing is a single postable item on the board. OwnerID is the opaque
// device identifier supplied at creation; an empty OwnerID means the listing
// was created anonymously. PinHash is a SHA-256 hex digest of the owner's
// optional PIN and is never exposed through the public view.
type Listing struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id,omitempty"`
	CarName   string    `json:"car_name"`
	Price     string    `json:"price"`
	ImageURL  string    `json:"image_url,omitempty"`
	Contact   string    `json:"contact"`
	PinHash   string    `json:"pin_hash,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Stats     Stats     `json:"stats"`
	Hidden    bool      `json:"hidden"`
}

// HasPin reports whether edit/delete on this listing is PIN-gated.
func (l *Listing) HasPin() bool {
	return l.PinHash != ""
}

// View is the client-visible projection of a Listing. It substitutes the
// stored PIN digest with a boolean.
type View struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId,omitempty"`
	CarName   string    `json:"carName"`
	Price     string    `json:"price"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	Contact   string    `json:"contact"`
	HasPin    bool      `json:"hasPin"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Stats     Stats     `json:"stats"`
	Hidden    bool      `json:"hidden"`
}

// PublicView builds the client-visible projection of the listing.
func (l *Listing) PublicView() View {
	return View{
		ID:        l.ID,
		OwnerID:   l.OwnerID,
		CarName:   l.CarName,
		Price:     l.Price,
		ImageURL:  l.ImageURL,
		Contact:   l.Contact,
		HasPin:    l.HasPin(),
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
		Stats:     l.Stats,
		Hidden:    l.Hidden,
	}
}

// EngagementKind identifies a non-ownership-gated action against a listing.
type EngagementKind string

const (
	EngagementView     EngagementKind = "view"
	EngagementLike     EngagementKind = "like"
	EngagementFavorite EngagementKind = "favorite"
)

// Valid reports whether k is a known engagement kind.
func (k EngagementKind) Valid() bool {
	switch k {
	case EngagementView, EngagementLike, EngagementFavorite:
		return true
	}
	return false
}

// Report is a ledger entry recording that a device reported a listing.
// Entries are removed when their listing is deleted so the ledger never
// holds orphaned references.
type Report struct {
	ID        string    `json:"id"`
	ListingID string    `json:"listing_id"`
	DeviceID  string    `json:"device_id"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Fields carries the free-text display fields of a listing. Used for both
// create (all required fields must be set) and partial edit (nil means
// "keep the previous value").
type Fields struct {
	CarName  *string
	Price    *string
	ImageURL *string
	Contact  *string
}

// trimPtr trims surrounding whitespace in place and returns the value,
// or "" for nil.
func trimPtr(s *string) string {
	if s == nil {
		return ""
	}
	*s = strings.TrimSpace(*s)
	return *s
}

// Normalize trims all supplied fields.
func (f *Fields) Normalize() {
	trimPtr(f.CarName)
	trimPtr(f.Price)
	trimPtr(f.ImageURL)
	trimPtr(f.Contact)
}

// ValidateForCreate checks that the required display fields are present and
// non-empty after trimming. ImageURL is optional.
func (f *Fields) ValidateForCreate() error {
	f.Normalize()
	if f.CarName == nil || *f.CarName == "" {
		return &ValidationError{Field: "carName"}
	}
	if f.Price == nil || *f.Price == "" {
		return &ValidationError{Field: "price"}
	}
	if f.Contact == nil || *f.Contact == "" {
		return &ValidationError{Field: "contact"}
	}
	return nil
}

// ApplyTo copies the supplied fields onto the listing, leaving omitted
// fields untouched.
func (f *Fields) ApplyTo(l *Listing) {
	f.Normalize()
	if f.CarName != nil {
		l.CarName = *f.CarName
	}
	if f.Price != nil {
		l.Price = *f.Price
	}
	if f.ImageURL != nil {
		l.ImageURL = *f.ImageURL
	}
	if f.Contact != nil {
		l.Contact = *f.Contact
	}
}
