package server

import (
	"regexp"
	"slices"
	"strings"

	"github.com/MCT-Salman/invocca/pkg/types"
)

var hexColor = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

var (
	eventStatuses  = []string{types.EventStatusPending, types.EventStatusApproved, types.EventStatusRejected, types.EventStatusCanceled}
	reportStatuses = []string{types.ReportStatusOpen, types.ReportStatusResolved}
)

// eventTransitions lists the states each event status may move to.
var eventTransitions = map[string][]string{
	types.EventStatusPending:  {types.EventStatusApproved, types.EventStatusRejected, types.EventStatusCanceled},
	types.EventStatusApproved: {types.EventStatusCanceled},
}

type fieldErrors []types.ValidationError

func (f *fieldErrors) add(field, message string) {
	*f = append(*f, types.ValidationError{Field: field, Message: message})
}

func (f *fieldErrors) required(field, value string) {
	if strings.TrimSpace(value) == "" {
		f.add(field, field+" is required")
	}
}

func validateHall(h types.Hall) []types.ValidationError {
	var errs fieldErrors
	errs.required("name", h.Name)
	if h.Capacity <= 0 {
		errs.add("capacity", "capacity must be greater than zero")
	}
	if h.PricePerHour < 0 {
		errs.add("pricePerHour", "pricePerHour must not be negative")
	}
	return errs
}

func validateService(sv types.Service) []types.ValidationError {
	var errs fieldErrors
	errs.required("hallID", sv.HallID)
	errs.required("name", sv.Name)
	if sv.Price < 0 {
		errs.add("price", "price must not be negative")
	}
	return errs
}

func validateEvent(e types.Event) []types.ValidationError {
	var errs fieldErrors
	errs.required("hallID", e.HallID)
	errs.required("name", e.Name)
	switch {
	case e.StartsAt.IsZero():
		errs.add("startsAt", "startsAt is required")
	case e.EndsAt.IsZero():
		errs.add("endsAt", "endsAt is required")
	case !e.StartsAt.Before(e.EndsAt):
		errs.add("endsAt", "endsAt must be after startsAt")
	}
	if e.GuestCapacity <= 0 {
		errs.add("guestCapacity", "guestCapacity must be greater than zero")
	}
	if e.Status != "" && !slices.Contains(eventStatuses, e.Status) {
		errs.add("status", "status must be one of "+strings.Join(eventStatuses, ", "))
	}
	return errs
}

func validateInvitation(inv types.Invitation) []types.ValidationError {
	var errs fieldErrors
	errs.required("eventID", inv.EventID)
	errs.required("guestName", inv.GuestName)
	if inv.NumOfPeople <= 0 {
		errs.add("numOfPeople", "numOfPeople must be greater than zero")
	}
	return errs
}

func validateTemplate(t types.Template) []types.ValidationError {
	var errs fieldErrors
	errs.required("name", t.Name)
	if !hexColor.MatchString(t.Background) {
		errs.add("background", "background must be a #RRGGBB colour")
	}
	if !hexColor.MatchString(t.TextColor) {
		errs.add("textColor", "textColor must be a #RRGGBB colour")
	}
	return errs
}

func validateReport(rp types.Report) []types.ValidationError {
	var errs fieldErrors
	errs.required("hallID", rp.HallID)
	errs.required("title", rp.Title)
	if rp.Status != "" && !slices.Contains(reportStatuses, rp.Status) {
		errs.add("status", "status must be one of "+strings.Join(reportStatuses, ", "))
	}
	return errs
}

func validateRating(rt types.Rating) []types.ValidationError {
	var errs fieldErrors
	errs.required("hallID", rt.HallID)
	if rt.Score < 1 || rt.Score > 5 {
		errs.add("score", "score must be between 1 and 5")
	}
	return errs
}
