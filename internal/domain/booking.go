package domain

// Space identifies which part of the field a reservation occupies. The whole
// field is composed of two independently bookable halves.
type Space string

const (
	SpaceWhole Space = "WHOLE"
	SpaceHalfA Space = "HALF_A"
	SpaceHalfB Space = "HALF_B"
)

func ParseSpace(s string) (Space, bool) {
	switch Space(s) {
	case SpaceWhole, SpaceHalfA, SpaceHalfB:
		return Space(s), true
	default:
		return "", false
	}
}

// ConflictSet returns the spaces whose reservations can collide with s.
// WHOLE collides with everything; each half collides with itself and WHOLE,
// never with its sibling. Unknown values are treated as WHOLE.
func (s Space) ConflictSet() []Space {
	switch s {
	case SpaceHalfA:
		return []Space{SpaceWhole, SpaceHalfA}
	case SpaceHalfB:
		return []Space{SpaceWhole, SpaceHalfB}
	default:
		return []Space{SpaceWhole, SpaceHalfA, SpaceHalfB}
	}
}

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
)

const (
	MaxNameLen = 80
	MaxNoteLen = 500
)

// Booking is a confirmed (or cancelled) reservation of one space for a
// half-open interval [StartTs, EndTs). Timestamps are epoch seconds.
type Booking struct {
	ID        int64         `json:"id"`
	StartTs   int64         `json:"start_ts"`
	EndTs     int64         `json:"end_ts"`
	Name      string        `json:"name"`
	Email     string        `json:"email,omitempty"`
	Space     Space         `json:"space"`
	Note      string        `json:"note,omitempty"`
	CreatedTs int64         `json:"created_ts,omitempty"`
	CreatedIP string        `json:"created_ip,omitempty"`
	Status    BookingStatus `json:"status"`
	EditToken string        `json:"-"`
}

// Overlaps reports whether the booking's interval intersects [start, end)
// under half-open semantics: touching endpoints do not overlap.
func (b *Booking) Overlaps(start, end int64) bool {
	return b.StartTs < end && b.EndTs > start
}

// Pending-verification constants: the emailed code is valid for 10 minutes
// and may be guessed at most 5 times.
const (
	CodeTTLSeconds  = 600
	MaxCodeAttempts = 5
)

// PendingBooking is an unconfirmed reservation candidate awaiting email-code
// verification. It never blocks other requests; only confirmed bookings and
// recurring occurrences do.
type PendingBooking struct {
	ID            int64
	StartTs       int64
	EndTs         int64
	Name          string
	Email         string
	Space         Space
	Note          string
	CodeHash      string
	CodeExpiresTs int64
	Attempts      int
	CreatedTs     int64
	CreatedIP     string
}
