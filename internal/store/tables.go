package store

import (
	"strconv"
	"time"

	"github.com/lib/pq"

	"github.com/MCT-Salman/invocca/pkg/types"
)

const schema = "invocca"

// field maps one spec field to its column. filter is the list query key
// that selects on it, empty when the field is not filterable.
type field[S any] struct {
	column string
	filter string
	ref    func(*S) any
}

type tableDef[S any] struct {
	resource string
	table    string
	fields   []field[S]
}

func (d tableDef[S]) columns() []string {
	cols := make([]string, 0, len(d.fields))
	for _, f := range d.fields {
		cols = append(cols, f.column)
	}
	return cols
}

func (d tableDef[S]) refs(s *S) []any {
	refs := make([]any, 0, len(d.fields))
	for _, f := range d.fields {
		refs = append(refs, f.ref(s))
	}
	return refs
}

func (d tableDef[S]) filterField(key string) (field[S], bool) {
	for _, f := range d.fields {
		if f.filter != "" && f.filter == key {
			return f, true
		}
	}
	return field[S]{}, false
}

// matches compares a filter value against the field pointed to by ref.
func matches(ref any, want string) bool {
	switch v := ref.(type) {
	case *string:
		return *v == want
	case *bool:
		b, err := strconv.ParseBool(want)
		return err == nil && *v == b
	case *int:
		n, err := strconv.Atoi(want)
		return err == nil && *v == n
	default:
		return false
	}
}

var hallTable = tableDef[types.Hall]{
	resource: types.ResourceHalls,
	table:    schema + ".halls",
	fields: []field[types.Hall]{
		{column: "name", ref: func(s *types.Hall) any { return &s.Name }},
		{column: "location", ref: func(s *types.Hall) any { return &s.Location }},
		{column: "capacity", ref: func(s *types.Hall) any { return &s.Capacity }},
		{column: "price_per_hour", ref: func(s *types.Hall) any { return &s.PricePerHour }},
		{column: "manager_id", filter: "managerID", ref: func(s *types.Hall) any { return &s.ManagerID }},
		{column: "active", filter: "active", ref: func(s *types.Hall) any { return &s.Active }},
	},
}

var serviceTable = tableDef[types.Service]{
	resource: types.ResourceServices,
	table:    schema + ".services",
	fields: []field[types.Service]{
		{column: "hall_id", filter: "hallID", ref: func(s *types.Service) any { return &s.HallID }},
		{column: "name", ref: func(s *types.Service) any { return &s.Name }},
		{column: "price", ref: func(s *types.Service) any { return &s.Price }},
		{column: "description", ref: func(s *types.Service) any { return &s.Description }},
	},
}

var eventTable = tableDef[types.Event]{
	resource: types.ResourceEvents,
	table:    schema + ".events",
	fields: []field[types.Event]{
		{column: "hall_id", filter: "hallID", ref: func(s *types.Event) any { return &s.HallID }},
		{column: "client_id", filter: "clientID", ref: func(s *types.Event) any { return &s.ClientID }},
		{column: "name", ref: func(s *types.Event) any { return &s.Name }},
		{column: "starts_at", ref: func(s *types.Event) any { return &s.StartsAt }},
		{column: "ends_at", ref: func(s *types.Event) any { return &s.EndsAt }},
		{column: "guest_capacity", ref: func(s *types.Event) any { return &s.GuestCapacity }},
		{column: "status", filter: "status", ref: func(s *types.Event) any { return &s.Status }},
		{column: "service_ids", ref: func(s *types.Event) any { return pq.Array(&s.ServiceIDs) }},
	},
}

var invitationTable = tableDef[types.Invitation]{
	resource: types.ResourceInvitations,
	table:    schema + ".invitations",
	fields: []field[types.Invitation]{
		{column: "event_id", filter: "eventID", ref: func(s *types.Invitation) any { return &s.EventID }},
		{column: "template_id", filter: "templateID", ref: func(s *types.Invitation) any { return &s.TemplateID }},
		{column: "guest_name", ref: func(s *types.Invitation) any { return &s.GuestName }},
		{column: "num_of_people", ref: func(s *types.Invitation) any { return &s.NumOfPeople }},
		{column: "phone", ref: func(s *types.Invitation) any { return &s.Phone }},
		{column: "code", filter: "code", ref: func(s *types.Invitation) any { return &s.Code }},
	},
}

var templateTable = tableDef[types.Template]{
	resource: types.ResourceTemplates,
	table:    schema + ".templates",
	fields: []field[types.Template]{
		{column: "name", ref: func(s *types.Template) any { return &s.Name }},
		{column: "background", ref: func(s *types.Template) any { return &s.Background }},
		{column: "text_color", ref: func(s *types.Template) any { return &s.TextColor }},
		{column: "active", filter: "active", ref: func(s *types.Template) any { return &s.Active }},
	},
}

var reportTable = tableDef[types.Report]{
	resource: types.ResourceReports,
	table:    schema + ".reports",
	fields: []field[types.Report]{
		{column: "hall_id", filter: "hallID", ref: func(s *types.Report) any { return &s.HallID }},
		{column: "event_id", filter: "eventID", ref: func(s *types.Report) any { return &s.EventID }},
		{column: "title", ref: func(s *types.Report) any { return &s.Title }},
		{column: "body", ref: func(s *types.Report) any { return &s.Body }},
		{column: "status", filter: "status", ref: func(s *types.Report) any { return &s.Status }},
	},
}

var ratingTable = tableDef[types.Rating]{
	resource: types.ResourceRatings,
	table:    schema + ".ratings",
	fields: []field[types.Rating]{
		{column: "hall_id", filter: "hallID", ref: func(s *types.Rating) any { return &s.HallID }},
		{column: "client_id", filter: "clientID", ref: func(s *types.Rating) any { return &s.ClientID }},
		{column: "score", ref: func(s *types.Rating) any { return &s.Score }},
		{column: "comment", ref: func(s *types.Rating) any { return &s.Comment }},
	},
}

// now is truncated to the precision PostgreSQL stores so ETags computed
// before and after a round trip agree.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
