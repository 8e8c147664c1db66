package console

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/MCT-Salman/invocca/pkg/capacity"
	"github.com/MCT-Salman/invocca/pkg/client"
	"github.com/MCT-Salman/invocca/pkg/crud"
	"github.com/MCT-Salman/invocca/pkg/dialog"
	"github.com/MCT-Salman/invocca/pkg/form"
	"github.com/MCT-Salman/invocca/pkg/listview"
	"github.com/MCT-Salman/invocca/pkg/notify"
	"github.com/MCT-Salman/invocca/pkg/query"
	"github.com/MCT-Salman/invocca/pkg/screen"
	"github.com/MCT-Salman/invocca/pkg/types"
)

const timeLayout = "2006-01-02 15:04"

var hexColor = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// page is the console's view of one resource screen.
type page interface {
	Title() string
	Resource() string
	Mount(ctx context.Context)
	Unmount()
	Load() error
	Reload() error
	Retry() error
	Failed() bool
	Stale() bool
	Render(width int, st listview.Styles) string
	Move(delta int)
	NextPage()
	PrevPage()
	Invoke(key string) error
	OpenCreate()
	Mode() dialog.Mode
	Form() *form.State
	Detail() string
	Submit() error
	ConfirmDelete() error
	CanToggle() bool
	Toggle() error
	Close()
	Pending() bool
}

// deps are shared by every page.
type deps struct {
	client   *client.Client
	cache    *query.Cache
	notifier notify.Notifier
	logger   zerolog.Logger
	pageSize int
}

// pageDef describes one resource page.
type pageDef[S any] struct {
	title    string
	noun     string
	res      *client.Resources[S]
	filters  map[string]string
	related  []string
	schema   func(selected *types.Resource[S]) *form.Schema
	values   func(S) map[string]string
	apply    func(v form.Values, spec *S)
	columns  []listview.Column[types.Resource[S]]
	cardName func(S) string
	// toggle, when set, binds row action t to a patch of one boolean field.
	toggle *toggleDef[S]
}

// toggleDef flips one boolean spec field through a merge patch.
type toggleDef[S any] struct {
	field string
	get   func(S) bool
}

func (t *toggleDef[S]) build(noun string, res *client.Resources[S]) *screen.Toggle[types.Resource[S]] {
	if t == nil {
		return nil
	}
	return &screen.Toggle[types.Resource[S]]{
		Label: "toggle " + t.field,
		Patch: func(ctx context.Context, row types.Resource[S]) (types.Resource[S], error) {
			out, err := res.Patch(ctx, row.Metadata.ID, map[string]any{t.field: !t.get(row.Spec)})
			if err != nil {
				return types.Resource[S]{}, err
			}
			return *out, nil
		},
		Message: func(r types.Resource[S]) string {
			if t.get(r.Spec) {
				return noun + " activated"
			}
			return noun + " deactivated"
		},
	}
}

type resourcePage[S any] struct {
	name  string
	res   *client.Resources[S]
	cache *query.Cache
	scr   *screen.Screen[types.Resource[S], S]
}

func newPage[S any](d deps, def pageDef[S]) *resourcePage[S] {
	name := def.res.Name()
	key := query.Key{name, "list"}
	invalidate := make([]query.Key, 0, len(def.related)+1)
	invalidate = append(invalidate, query.Key{"dashboard"})
	for _, r := range def.related {
		invalidate = append(invalidate, query.Key{r})
	}

	scr := screen.New(screen.Config[types.Resource[S], S]{
		Title:      def.title,
		Key:        key,
		Invalidate: invalidate,
		Cache:      d.cache,
		Fetch: func(ctx context.Context) ([]types.Resource[S], error) {
			return def.res.ListAll(ctx, def.filters)
		},
		Resource: crud.Funcs[types.Resource[S], S]{
			CreateFunc: func(ctx context.Context, spec S) (types.Resource[S], error) {
				out, err := def.res.Create(ctx, spec)
				if err != nil {
					return types.Resource[S]{}, err
				}
				return *out, nil
			},
			UpdateFunc: func(ctx context.Context, id string, spec S) (types.Resource[S], error) {
				out, err := def.res.Update(ctx, id, spec)
				if err != nil {
					return types.Resource[S]{}, err
				}
				return *out, nil
			},
			DeleteFunc: func(ctx context.Context, id string) error {
				return def.res.Delete(ctx, id)
			},
		},
		Notifier: d.notifier,
		Messages: crud.DefaultMessages(def.noun),
		Schema:   def.schema,
		Values: func(r types.Resource[S]) map[string]string {
			return def.values(r.Spec)
		},
		Payload: func(v form.Values, selected *types.Resource[S]) (S, error) {
			var spec S
			if selected != nil {
				spec = selected.Spec
			}
			def.apply(v, &spec)
			return spec, nil
		},
		Columns: def.columns,
		CardTitle: func(r types.Resource[S]) string {
			return def.cardName(r.Spec)
		},
		Toggle:   def.toggle.build(def.noun, def.res),
		PageSize: d.pageSize,
		Logger:   d.logger.With().Str("page", name).Logger(),
	})
	return &resourcePage[S]{name: name, res: def.res, cache: d.cache, scr: scr}
}

func (p *resourcePage[S]) Title() string              { return p.scr.Title() }
func (p *resourcePage[S]) Resource() string           { return p.name }
func (p *resourcePage[S]) Mount(ctx context.Context)  { p.scr.Mount(ctx) }
func (p *resourcePage[S]) Unmount()                   { p.scr.Unmount() }
func (p *resourcePage[S]) Load() error                { return p.scr.Load() }
func (p *resourcePage[S]) Retry() error               { return p.scr.Retry() }
func (p *resourcePage[S]) Stale() bool                { return p.scr.Stale() }
func (p *resourcePage[S]) Failed() bool               { return p.scr.Phase() == listview.PhaseError }
func (p *resourcePage[S]) Move(delta int)             { p.scr.List().MoveCursor(delta) }
func (p *resourcePage[S]) NextPage()                  { p.scr.List().NextPage() }
func (p *resourcePage[S]) PrevPage()                  { p.scr.List().PrevPage() }
func (p *resourcePage[S]) Invoke(key string) error    { return p.scr.List().Invoke(key) }
func (p *resourcePage[S]) OpenCreate()                { p.scr.OpenCreate() }
func (p *resourcePage[S]) Mode() dialog.Mode          { return p.scr.Dialog().Mode() }
func (p *resourcePage[S]) Form() *form.State          { return p.scr.Form() }
func (p *resourcePage[S]) Close()                     { p.scr.Close() }
func (p *resourcePage[S]) Pending() bool              { return p.scr.Pending() }
func (p *resourcePage[S]) Submit() error              { return p.scr.Submit().Err }
func (p *resourcePage[S]) ConfirmDelete() error       { return p.scr.ConfirmDelete().Err }
func (p *resourcePage[S]) CanToggle() bool            { return p.scr.CanToggle() }

// Toggle runs the toggle action on the row under the cursor.
func (p *resourcePage[S]) Toggle() error {
	row, ok := p.scr.List().Selected()
	if !ok {
		return nil
	}
	return p.scr.ToggleRow(row).Err
}

// Reload drops the cached list and fetches it again.
func (p *resourcePage[S]) Reload() error {
	p.cache.Invalidate(p.scr.Key())
	return p.scr.Load()
}

// Render draws the list inside the page's error boundary.
func (p *resourcePage[S]) Render(width int, st listview.Styles) string {
	p.scr.List().SetWidth(width)
	return p.scr.Boundary().Render(func() string {
		return p.scr.List().Render(p.scr.Frame(), st)
	}, screen.DefaultFallback)
}

// Detail renders the record bound to the view dialog as YAML.
func (p *resourcePage[S]) Detail() string {
	row, ok := p.scr.Dialog().Selected()
	if !ok {
		return ""
	}
	out, err := yaml.Marshal(struct {
		ID      string    `yaml:"id"`
		Updated time.Time `yaml:"updated"`
		Spec    S         `yaml:"spec"`
	}{row.Metadata.ID, row.Metadata.UpdatedAt, row.Spec})
	if err != nil {
		return err.Error()
	}
	return string(out)
}

func col[S any](title string, value func(S) string) listview.Column[types.Resource[S]] {
	return listview.Column[types.Resource[S]]{
		Title: title,
		Value: func(r types.Resource[S]) string { return value(r.Spec) },
	}
}

func itoa(n int) string { return strconv.Itoa(n) }

func ftoa(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func hallsPage(d deps) page {
	return newPage(d, pageDef[types.Hall]{
		title: "Halls",
		noun:  "Hall",
		res:   d.client.Halls(),
		schema: func(*types.Resource[types.Hall]) *form.Schema {
			return form.NewSchema(
				form.String("name", "Name", form.Required(), form.Length(2, 120)),
				form.String("location", "Location"),
				form.Int("capacity", "Capacity", form.Required(), form.Min(1)),
				form.Float("pricePerHour", "Price per hour", form.Min(0), form.Default("0")),
				form.String("managerID", "Manager ID"),
				form.Bool("active", "Active", form.Default("true")),
			)
		},
		values: func(h types.Hall) map[string]string {
			return map[string]string{
				"name": h.Name, "location": h.Location, "capacity": itoa(h.Capacity),
				"pricePerHour": ftoa(h.PricePerHour), "managerID": h.ManagerID,
				"active": strconv.FormatBool(h.Active),
			}
		},
		apply: func(v form.Values, h *types.Hall) {
			h.Name = v.String("name")
			h.Location = v.String("location")
			h.Capacity = v.Int("capacity")
			h.PricePerHour = v.Float("pricePerHour")
			h.ManagerID = v.String("managerID")
			h.Active = v.Bool("active")
		},
		columns: []listview.Column[types.Resource[types.Hall]]{
			col("Name", func(h types.Hall) string { return h.Name }),
			col("Location", func(h types.Hall) string { return h.Location }),
			col("Capacity", func(h types.Hall) string { return itoa(h.Capacity) }),
			col("Price/h", func(h types.Hall) string { return ftoa(h.PricePerHour) }),
			col("Active", func(h types.Hall) string { return strconv.FormatBool(h.Active) }),
		},
		cardName: func(h types.Hall) string { return h.Name },
		toggle:   &toggleDef[types.Hall]{field: "active", get: func(h types.Hall) bool { return h.Active }},
	})
}

func servicesPage(d deps) page {
	return newPage(d, pageDef[types.Service]{
		title: "Services",
		noun:  "Service",
		res:   d.client.Services(),
		schema: func(*types.Resource[types.Service]) *form.Schema {
			return form.NewSchema(
				form.String("hallID", "Hall ID", form.Required()),
				form.String("name", "Name", form.Required()),
				form.Float("price", "Price", form.Min(0), form.Default("0")),
				form.String("description", "Description", form.Length(0, 500)),
			)
		},
		values: func(s types.Service) map[string]string {
			return map[string]string{"hallID": s.HallID, "name": s.Name, "price": ftoa(s.Price), "description": s.Description}
		},
		apply: func(v form.Values, s *types.Service) {
			s.HallID = v.String("hallID")
			s.Name = v.String("name")
			s.Price = v.Float("price")
			s.Description = v.String("description")
		},
		columns: []listview.Column[types.Resource[types.Service]]{
			col("Name", func(s types.Service) string { return s.Name }),
			col("Hall", func(s types.Service) string { return s.HallID }),
			col("Price", func(s types.Service) string { return ftoa(s.Price) }),
		},
		cardName: func(s types.Service) string { return s.Name },
	})
}

var eventStatuses = []string{types.EventStatusPending, types.EventStatusApproved, types.EventStatusRejected, types.EventStatusCanceled}

func eventsPage(d deps) page {
	return newPage(d, pageDef[types.Event]{
		title:   "Events",
		noun:    "Event",
		res:     d.client.Events(),
		related: []string{types.ResourceInvitations},
		schema: func(selected *types.Resource[types.Event]) *form.Schema {
			fields := []form.Field{
				form.String("hallID", "Hall ID", form.Required()),
				form.String("name", "Name", form.Required()),
				form.Time("startsAt", "Starts at", form.Required()),
				form.Time("endsAt", "Ends at", form.Required()),
				form.Int("guestCapacity", "Guest capacity", form.Required(), form.Min(1)),
				form.String("serviceIDs", "Service IDs (comma separated)"),
			}
			if selected != nil {
				fields = append(fields, form.Enum("status", "Status", eventStatuses, form.Required()))
			}
			return form.NewSchema(fields...).Refine(form.Refinement{
				Field: "endsAt",
				Check: func(_ context.Context, v form.Values) (string, error) {
					if !v.Time("startsAt").Before(v.Time("endsAt")) {
						return "Ends at must be after Starts at", nil
					}
					return "", nil
				},
			})
		},
		values: func(e types.Event) map[string]string {
			return map[string]string{
				"hallID": e.HallID, "name": e.Name,
				"startsAt": e.StartsAt.UTC().Format(timeLayout), "endsAt": e.EndsAt.UTC().Format(timeLayout),
				"guestCapacity": itoa(e.GuestCapacity), "serviceIDs": strings.Join(e.ServiceIDs, ","),
				"status": e.Status,
			}
		},
		apply: func(v form.Values, e *types.Event) {
			e.HallID = v.String("hallID")
			e.Name = v.String("name")
			e.StartsAt = v.Time("startsAt")
			e.EndsAt = v.Time("endsAt")
			e.GuestCapacity = v.Int("guestCapacity")
			e.ServiceIDs = splitList(v.String("serviceIDs"))
			if status := v.String("status"); status != "" {
				e.Status = status
			}
		},
		columns: []listview.Column[types.Resource[types.Event]]{
			col("Name", func(e types.Event) string { return e.Name }),
			col("Starts", func(e types.Event) string { return e.StartsAt.UTC().Format(timeLayout) }),
			col("Guests", func(e types.Event) string { return itoa(e.GuestCapacity) }),
			col("Status", func(e types.Event) string { return e.Status }),
		},
		cardName: func(e types.Event) string { return e.Name },
	})
}

// invitationsPage checks the guest ceiling against the live event and its
// current invitations before submitting.
func invitationsPage(d deps, eventID string) page {
	filters := map[string]string{}
	if eventID != "" {
		filters["eventID"] = eventID
	}
	return newPage(d, pageDef[types.Invitation]{
		title:   "Invitations",
		noun:    "Invitation",
		res:     d.client.Invitations(),
		filters: filters,
		related: []string{types.ResourceEvents},
		schema: func(selected *types.Resource[types.Invitation]) *form.Schema {
			defaultEvent := eventID
			if selected != nil {
				defaultEvent = selected.Spec.EventID
			}
			return form.NewSchema(
				form.String("eventID", "Event ID", form.Required(), form.Default(defaultEvent)),
				form.String("templateID", "Template ID"),
				form.String("guestName", "Guest name", form.Required(), form.Length(2, 120)),
				form.Int("numOfPeople", "Number of people", form.Required(), form.Min(1), form.Default("1")),
				form.String("phone", "Phone"),
			).Refine(form.GuestCeiling("numOfPeople", guestSnapshot(d.client, selected)))
		},
		values: func(i types.Invitation) map[string]string {
			return map[string]string{
				"eventID": i.EventID, "templateID": i.TemplateID, "guestName": i.GuestName,
				"numOfPeople": itoa(i.NumOfPeople), "phone": i.Phone,
			}
		},
		apply: func(v form.Values, i *types.Invitation) {
			i.EventID = v.String("eventID")
			i.TemplateID = v.String("templateID")
			i.GuestName = v.String("guestName")
			i.NumOfPeople = v.Int("numOfPeople")
			i.Phone = v.String("phone")
		},
		columns: []listview.Column[types.Resource[types.Invitation]]{
			col("Guest", func(i types.Invitation) string { return i.GuestName }),
			col("People", func(i types.Invitation) string { return itoa(i.NumOfPeople) }),
			col("Code", func(i types.Invitation) string { return i.Code }),
			col("Event", func(i types.Invitation) string { return i.EventID }),
		},
		cardName: func(i types.Invitation) string { return i.GuestName },
	})
}

// guestSnapshot loads the event's ceiling and the live sum of its
// invitations. The edited invitation's stored count is the snapshot's
// Previous.
func guestSnapshot(c *client.Client, selected *types.Resource[types.Invitation]) form.SnapshotFunc {
	return func(ctx context.Context, v form.Values) (capacity.Snapshot, error) {
		eventID := v.String("eventID")
		event, err := c.Events().Get(ctx, eventID)
		if err != nil {
			return capacity.Snapshot{}, fmt.Errorf("loading event %q: %w", eventID, err)
		}
		siblings, err := c.Invitations().ListAll(ctx, map[string]string{"eventID": eventID})
		if err != nil {
			return capacity.Snapshot{}, fmt.Errorf("loading invitations of event %q: %w", eventID, err)
		}

		snap := capacity.Snapshot{Ceiling: event.Spec.GuestCapacity}
		snap.Used = capacity.Sum(siblings, func(r types.Resource[types.Invitation]) int { return r.Spec.NumOfPeople }, nil)
		if selected != nil {
			for _, r := range siblings {
				if r.Metadata.ID == selected.Metadata.ID {
					snap.Previous = r.Spec.NumOfPeople
				}
			}
		}
		return snap, nil
	}
}

func templatesPage(d deps) page {
	return newPage(d, pageDef[types.Template]{
		title: "Templates",
		noun:  "Template",
		res:   d.client.Templates(),
		schema: func(*types.Resource[types.Template]) *form.Schema {
			return form.NewSchema(
				form.String("name", "Name", form.Required()),
				form.String("background", "Background", form.Required(), form.Match(hexColor, "Background must be a #RRGGBB colour"), form.Default("#FFFFFF")),
				form.String("textColor", "Text colour", form.Required(), form.Match(hexColor, "Text colour must be a #RRGGBB colour"), form.Default("#000000")),
				form.Bool("active", "Active", form.Default("true")),
			)
		},
		values: func(t types.Template) map[string]string {
			return map[string]string{"name": t.Name, "background": t.Background, "textColor": t.TextColor, "active": strconv.FormatBool(t.Active)}
		},
		apply: func(v form.Values, t *types.Template) {
			t.Name = v.String("name")
			t.Background = v.String("background")
			t.TextColor = v.String("textColor")
			t.Active = v.Bool("active")
		},
		columns: []listview.Column[types.Resource[types.Template]]{
			col("Name", func(t types.Template) string { return t.Name }),
			col("Background", func(t types.Template) string { return t.Background }),
			col("Text", func(t types.Template) string { return t.TextColor }),
			col("Active", func(t types.Template) string { return strconv.FormatBool(t.Active) }),
		},
		cardName: func(t types.Template) string { return t.Name },
		toggle:   &toggleDef[types.Template]{field: "active", get: func(t types.Template) bool { return t.Active }},
	})
}

func reportsPage(d deps) page {
	return newPage(d, pageDef[types.Report]{
		title: "Reports",
		noun:  "Report",
		res:   d.client.Reports(),
		schema: func(selected *types.Resource[types.Report]) *form.Schema {
			fields := []form.Field{
				form.String("hallID", "Hall ID", form.Required()),
				form.String("eventID", "Event ID"),
				form.String("title", "Title", form.Required()),
				form.String("body", "Details", form.Length(0, 2000)),
			}
			if selected != nil {
				fields = append(fields, form.Enum("status", "Status",
					[]string{types.ReportStatusOpen, types.ReportStatusResolved}, form.Required()))
			}
			return form.NewSchema(fields...)
		},
		values: func(r types.Report) map[string]string {
			return map[string]string{"hallID": r.HallID, "eventID": r.EventID, "title": r.Title, "body": r.Body, "status": r.Status}
		},
		apply: func(v form.Values, r *types.Report) {
			r.HallID = v.String("hallID")
			r.EventID = v.String("eventID")
			r.Title = v.String("title")
			r.Body = v.String("body")
			if status := v.String("status"); status != "" {
				r.Status = status
			}
		},
		columns: []listview.Column[types.Resource[types.Report]]{
			col("Title", func(r types.Report) string { return r.Title }),
			col("Hall", func(r types.Report) string { return r.HallID }),
			col("Status", func(r types.Report) string { return r.Status }),
		},
		cardName: func(r types.Report) string { return r.Title },
	})
}

func ratingsPage(d deps) page {
	return newPage(d, pageDef[types.Rating]{
		title: "Ratings",
		noun:  "Rating",
		res:   d.client.Ratings(),
		schema: func(*types.Resource[types.Rating]) *form.Schema {
			return form.NewSchema(
				form.String("hallID", "Hall ID", form.Required()),
				form.Int("score", "Score", form.Required(), form.Min(1), form.Max(5)),
				form.String("comment", "Comment", form.Length(0, 500)),
			)
		},
		values: func(r types.Rating) map[string]string {
			return map[string]string{"hallID": r.HallID, "score": itoa(r.Score), "comment": r.Comment}
		},
		apply: func(v form.Values, r *types.Rating) {
			r.HallID = v.String("hallID")
			r.Score = v.Int("score")
			r.Comment = v.String("comment")
		},
		columns: []listview.Column[types.Resource[types.Rating]]{
			col("Hall", func(r types.Rating) string { return r.HallID }),
			col("Score", func(r types.Rating) string { return strings.Repeat("*", r.Score) }),
			col("Comment", func(r types.Rating) string { return r.Comment }),
		},
		cardName: func(r types.Rating) string { return r.HallID },
	})
}

// pagesFor returns the pages a role works with, in tab order.
func pagesFor(role string, d deps, eventID string) []page {
	switch role {
	case types.RoleManager:
		return []page{hallsPage(d), servicesPage(d), eventsPage(d), invitationsPage(d, eventID), reportsPage(d)}
	case types.RoleClient:
		return []page{eventsPage(d), invitationsPage(d, eventID), hallsPage(d), ratingsPage(d)}
	case types.RoleEmployee:
		return []page{eventsPage(d), invitationsPage(d, eventID), reportsPage(d), hallsPage(d)}
	default:
		return []page{hallsPage(d), servicesPage(d), eventsPage(d), invitationsPage(d, eventID),
			templatesPage(d), reportsPage(d), ratingsPage(d)}
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
