package types

import "time"

// Roles recognised by the API.
const (
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleClient   = "client"
	RoleEmployee = "employee"
)

// Resource collection names. They double as URL path segments and change
// feed resource names.
const (
	ResourceHalls       = "halls"
	ResourceServices    = "services"
	ResourceEvents      = "events"
	ResourceInvitations = "invitations"
	ResourceTemplates   = "templates"
	ResourceReports     = "reports"
	ResourceRatings     = "ratings"
)

// Resource kinds stamped on envelopes.
const (
	KindHall       = "Hall"
	KindService    = "Service"
	KindEvent      = "Event"
	KindInvitation = "Invitation"
	KindTemplate   = "Template"
	KindReport     = "Report"
	KindRating     = "Rating"
	KindDashboard  = "Dashboard"
)

// Event lifecycle states.
const (
	EventStatusPending  = "pending"
	EventStatusApproved = "approved"
	EventStatusRejected = "rejected"
	EventStatusCanceled = "canceled"
)

// Report lifecycle states.
const (
	ReportStatusOpen     = "open"
	ReportStatusResolved = "resolved"
)

// Hall is a bookable venue.
type Hall struct {
	Name         string  `json:"name"`
	Location     string  `json:"location,omitempty"`
	Capacity     int     `json:"capacity"`
	PricePerHour float64 `json:"pricePerHour"`
	ManagerID    string  `json:"managerID,omitempty"`
	Active       bool    `json:"active"`
}

// Service is an extra offered by a hall (catering, decoration, ...).
type Service struct {
	HallID      string  `json:"hallID"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Description string  `json:"description,omitempty"`
}

// Event is a hall booking. GuestCapacity is the ceiling for the sum of
// NumOfPeople across the event's invitations.
type Event struct {
	HallID        string    `json:"hallID"`
	ClientID      string    `json:"clientID,omitempty"`
	Name          string    `json:"name"`
	StartsAt      time.Time `json:"startsAt"`
	EndsAt        time.Time `json:"endsAt"`
	GuestCapacity int       `json:"guestCapacity"`
	Status        string    `json:"status,omitempty"`
	ServiceIDs    []string  `json:"serviceIDs,omitempty"`
}

// Invitation admits NumOfPeople guests to an event.
type Invitation struct {
	EventID     string `json:"eventID"`
	TemplateID  string `json:"templateID,omitempty"`
	GuestName   string `json:"guestName"`
	NumOfPeople int    `json:"numOfPeople"`
	Phone       string `json:"phone,omitempty"`
	Code        string `json:"code,omitempty"`
}

// Template is an invitation card design.
type Template struct {
	Name       string `json:"name"`
	Background string `json:"background"`
	TextColor  string `json:"textColor"`
	Active     bool   `json:"active"`
}

// Report is an issue raised against a hall or event.
type Report struct {
	HallID  string `json:"hallID"`
	EventID string `json:"eventID,omitempty"`
	Title   string `json:"title"`
	Body    string `json:"body,omitempty"`
	Status  string `json:"status,omitempty"`
}

// Rating is a client's score for a hall.
type Rating struct {
	HallID   string `json:"hallID"`
	ClientID string `json:"clientID,omitempty"`
	Score    int    `json:"score"`
	Comment  string `json:"comment,omitempty"`
}

// Dashboard summarises the records visible to the caller.
type Dashboard struct {
	Halls         int            `json:"halls"`
	ActiveHalls   int            `json:"activeHalls"`
	Events        map[string]int `json:"events"`
	Invitations   int            `json:"invitations"`
	Guests        int            `json:"guests"`
	OpenReports   int            `json:"openReports"`
	Ratings       int            `json:"ratings"`
	AverageRating float64        `json:"averageRating"`
}
