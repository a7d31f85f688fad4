package events

import (
	"net/url"
	"strconv"
)

// Event is the client-side projection of a backend event. It is never
// mutated locally.
type Event struct {
	ID                int64   `json:"id"`
	Title             string  `json:"title"`
	Description       string  `json:"description"`
	EventType         string  `json:"eventType"`
	Venue             string  `json:"venue"`
	Address           string  `json:"address,omitempty"`
	City              string  `json:"city,omitempty"`
	State             string  `json:"state,omitempty"`
	Country           string  `json:"country,omitempty"`
	PostalCode        string  `json:"postalCode,omitempty"`
	StartDate         string  `json:"startDate"`
	EndDate           string  `json:"endDate,omitempty"`
	Capacity          int     `json:"capacity"`
	AvailableCapacity *int    `json:"availableCapacity,omitempty"`
	ReservedCapacity  *int    `json:"reservedCapacity,omitempty"`
	Price             float64 `json:"price"`
	OrganizerID       int64   `json:"organizerId"`
	Status            Status  `json:"status"`
	CreatedAt         string  `json:"createdAt,omitempty"`
	UpdatedAt         string  `json:"updatedAt,omitempty"`
}

// Available returns the remaining capacity, falling back to the total
// capacity when the backend did not report it.
func (e Event) Available() int {
	if e.AvailableCapacity != nil {
		return *e.AvailableCapacity
	}
	return e.Capacity
}

// IsBookable reports whether a reservation for quantity can be attempted
func (e Event) IsBookable(quantity int) bool {
	return e.Status == StatusPublished && quantity >= 1 && e.Available() >= quantity
}

// PriceFor is the total price of quantity tickets
func (e Event) PriceFor(quantity int) float64 {
	return e.Price * float64(quantity)
}

// PaginatedEvents is one page of the listing
type PaginatedEvents struct {
	Content          []Event `json:"content"`
	TotalPages       int     `json:"totalPages"`
	TotalElements    int64   `json:"totalElements"`
	Number           int     `json:"number"`
	Size             int     `json:"size"`
	NumberOfElements int     `json:"numberOfElements"`
	First            bool    `json:"first"`
	Last             bool    `json:"last"`
	Empty            bool    `json:"empty"`
}

// Availability is the live capacity of one event
type Availability struct {
	EventID           int64 `json:"eventId"`
	AvailableCapacity int   `json:"availableCapacity"`
}

// EventListQuery carries listing and search parameters
type EventListQuery struct {
	Page       int    `form:"page" binding:"omitempty,min=0"`
	Size       int    `form:"size" binding:"omitempty,min=1,max=100"`
	SearchTerm string `form:"searchTerm"`
	City       string `form:"city"`
	EventType  string `form:"eventType"`
}

const defaultPageSize = 20

// Normalize applies the default page size
func (q EventListQuery) Normalize() EventListQuery {
	if q.Page < 0 {
		q.Page = 0
	}
	if q.Size <= 0 {
		q.Size = defaultPageSize
	}
	return q
}

// Filters returns the search filters that are set
func (q EventListQuery) Filters() url.Values {
	v := url.Values{}
	if q.SearchTerm != "" {
		v.Set("searchTerm", q.SearchTerm)
	}
	if q.City != "" {
		v.Set("city", q.City)
	}
	if q.EventType != "" {
		v.Set("eventType", q.EventType)
	}
	return v
}

// Values encodes the full query string
func (q EventListQuery) Values() url.Values {
	v := q.Filters()
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("size", strconv.Itoa(q.Size))
	return v
}

// CreateEventRequest is an organizer request forwarded as is
type CreateEventRequest struct {
	Title       string  `json:"title" binding:"required,min=3,max=255" validate:"required,min=3,max=255"`
	Description string  `json:"description" binding:"max=2000" validate:"max=2000"`
	EventType   string  `json:"eventType" binding:"required" validate:"required"`
	Venue       string  `json:"venue" binding:"required" validate:"required"`
	Address     string  `json:"address,omitempty"`
	City        string  `json:"city,omitempty"`
	State       string  `json:"state,omitempty"`
	Country     string  `json:"country,omitempty"`
	PostalCode  string  `json:"postalCode,omitempty"`
	StartDate   string  `json:"startDate" binding:"required" validate:"required"`
	EndDate     string  `json:"endDate,omitempty"`
	Capacity    int     `json:"capacity" binding:"required,min=1" validate:"required,min=1"`
	Price       float64 `json:"price" binding:"min=0" validate:"min=0"`
	OrganizerID int64   `json:"organizerId" binding:"required" validate:"required"`
}
