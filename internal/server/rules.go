package server

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/MCT-Salman/invocca/internal/auth"
	"github.com/MCT-Salman/invocca/internal/model"
	"github.com/MCT-Salman/invocca/internal/store"
	"github.com/MCT-Salman/invocca/pkg/types"
)

const invitationCodePrefix = "INV-"

func (s *Server) halls() *resource[types.Hall] {
	return &resource[types.Hall]{
		srv:      s,
		name:     types.ResourceHalls,
		kind:     types.KindHall,
		noun:     "hall",
		table:    s.store.Halls(),
		read:     allRoles,
		write:    staffRoles,
		validate: validateHall,
		prepare: func(_ context.Context, c auth.Claims, spec *types.Hall, current *model.Record[types.Hall]) error {
			if c.Role != types.RoleManager {
				return nil
			}
			if spec.ManagerID != "" && spec.ManagerID != c.Subject {
				return forbidden("managers can only manage their own halls")
			}
			spec.ManagerID = c.Subject
			return nil
		},
		owns: func(_ context.Context, c auth.Claims, rec model.Record[types.Hall]) error {
			if c.Role == types.RoleManager && rec.Spec.ManagerID != c.Subject {
				return forbidden("hall %q is managed by another manager", rec.ID)
			}
			return nil
		},
	}
}

func (s *Server) services() *resource[types.Service] {
	return &resource[types.Service]{
		srv:      s,
		name:     types.ResourceServices,
		kind:     types.KindService,
		noun:     "service",
		table:    s.store.Services(),
		read:     allRoles,
		write:    staffRoles,
		validate: validateService,
		prepare: func(ctx context.Context, c auth.Claims, spec *types.Service, _ *model.Record[types.Service]) error {
			hall, err := s.hall(ctx, spec.HallID)
			if err != nil {
				return err
			}
			return managesHall(c, hall)
		},
		owns: func(ctx context.Context, c auth.Claims, rec model.Record[types.Service]) error {
			return s.managesHallID(ctx, c, rec.Spec.HallID)
		},
	}
}

func (s *Server) events() *resource[types.Event] {
	return &resource[types.Event]{
		srv:      s,
		name:     types.ResourceEvents,
		kind:     types.KindEvent,
		noun:     "event",
		table:    s.store.Events(),
		read:     allRoles,
		write:    []string{types.RoleAdmin, types.RoleManager, types.RoleClient},
		validate: validateEvent,
		scope: func(_ context.Context, c auth.Claims, filters map[string]string) error {
			if c.Role == types.RoleClient {
				filters["clientID"] = c.Subject
			}
			return nil
		},
		visible: func(_ context.Context, c auth.Claims, rec model.Record[types.Event]) bool {
			return c.Role != types.RoleClient || rec.Spec.ClientID == c.Subject
		},
		prepare: s.prepareEvent,
		owns: func(ctx context.Context, c auth.Claims, rec model.Record[types.Event]) error {
			switch c.Role {
			case types.RoleClient:
				if rec.Spec.ClientID != c.Subject {
					return forbidden("event %q belongs to another client", rec.ID)
				}
			case types.RoleManager:
				return s.managesHallID(ctx, c, rec.Spec.HallID)
			}
			return nil
		},
	}
}

func (s *Server) prepareEvent(ctx context.Context, c auth.Claims, spec *types.Event, current *model.Record[types.Event]) error {
	switch {
	case c.Role == types.RoleClient:
		spec.ClientID = c.Subject
	case spec.ClientID != "":
	case current != nil:
		spec.ClientID = current.Spec.ClientID
	default:
		spec.ClientID = c.Subject
	}

	if current == nil {
		if spec.Status == "" {
			spec.Status = types.EventStatusPending
		}
		if c.Role == types.RoleClient && spec.Status != types.EventStatusPending {
			return forbidden("clients can only request pending events")
		}
	} else {
		if spec.Status == "" {
			spec.Status = current.Spec.Status
		}
		if err := checkEventTransition(c, *current, *spec); err != nil {
			return err
		}
	}

	hall, err := s.hall(ctx, spec.HallID)
	if err != nil {
		return err
	}
	if err := managesHall(c, hall); err != nil {
		return err
	}
	if spec.GuestCapacity > hall.Spec.Capacity {
		return invalidField("guestCapacity", "guestCapacity exceeds the hall capacity of %d", hall.Spec.Capacity)
	}

	for _, id := range spec.ServiceIDs {
		svc, err := s.store.Services().Get(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return invalidField("serviceIDs", "service %q does not exist", id)
		}
		if err != nil {
			return err
		}
		if svc.Spec.HallID != spec.HallID {
			return invalidField("serviceIDs", "service %q is not offered by hall %q", id, spec.HallID)
		}
	}
	return nil
}

// checkEventTransition enforces the status machine. Clients may edit a
// pending request or cancel it and nothing else.
func checkEventTransition(c auth.Claims, current model.Record[types.Event], next types.Event) error {
	from, to := current.Spec.Status, next.Status
	if from != to && !slices.Contains(eventTransitions[from], to) {
		return invalidField("status", "cannot move an event from %s to %s", from, to)
	}
	if c.Role != types.RoleClient {
		return nil
	}
	if from != to {
		if to != types.EventStatusCanceled {
			return forbidden("clients can only cancel events")
		}
		return nil
	}
	if from != types.EventStatusPending {
		return forbidden("only pending events can be edited by clients")
	}
	return nil
}

func (s *Server) invitations() *resource[types.Invitation] {
	return &resource[types.Invitation]{
		srv:      s,
		name:     types.ResourceInvitations,
		kind:     types.KindInvitation,
		noun:     "invitation",
		table:    s.store.Invitations(),
		read:     allRoles,
		write:    []string{types.RoleAdmin, types.RoleManager, types.RoleClient},
		validate: validateInvitation,
		scope: func(ctx context.Context, c auth.Claims, filters map[string]string) error {
			if c.Role != types.RoleClient {
				return nil
			}
			eventID := filters["eventID"]
			if eventID == "" {
				return badRequest("clients must filter invitations by eventID")
			}
			event, err := s.store.Events().Get(ctx, eventID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			if err != nil || event.Spec.ClientID != c.Subject {
				return forbidden("event %q belongs to another client", eventID)
			}
			return nil
		},
		visible: func(ctx context.Context, c auth.Claims, rec model.Record[types.Invitation]) bool {
			if c.Role != types.RoleClient {
				return true
			}
			event, err := s.store.Events().Get(ctx, rec.Spec.EventID)
			return err == nil && event.Spec.ClientID == c.Subject
		},
		prepare: s.prepareInvitation,
		owns: func(ctx context.Context, c auth.Claims, rec model.Record[types.Invitation]) error {
			_, err := s.ownedEvent(ctx, c, rec.Spec.EventID)
			return err
		},
	}
}

func (s *Server) prepareInvitation(ctx context.Context, c auth.Claims, spec *types.Invitation, current *model.Record[types.Invitation]) error {
	if current != nil {
		spec.Code = current.Spec.Code
		if spec.EventID != current.Spec.EventID {
			return invalidField("eventID", "an invitation cannot be moved to another event")
		}
	} else {
		spec.Code = newInvitationCode()
	}

	event, err := s.ownedEvent(ctx, c, spec.EventID)
	if err != nil {
		return err
	}
	switch event.Spec.Status {
	case types.EventStatusCanceled, types.EventStatusRejected:
		return invalidField("eventID", "event %q is %s", event.ID, event.Spec.Status)
	}

	if spec.TemplateID != "" {
		tpl, err := s.store.Templates().Get(ctx, spec.TemplateID)
		if errors.Is(err, store.ErrNotFound) {
			return invalidField("templateID", "template %q does not exist", spec.TemplateID)
		}
		if err != nil {
			return err
		}
		if !tpl.Spec.Active && (current == nil || current.Spec.TemplateID != spec.TemplateID) {
			return invalidField("templateID", "template %q is not active", spec.TemplateID)
		}
	}
	return nil
}

// ownedEvent loads the event an invitation belongs to and checks the caller
// may manage its guests.
func (s *Server) ownedEvent(ctx context.Context, c auth.Claims, eventID string) (model.Record[types.Event], error) {
	event, err := s.store.Events().Get(ctx, eventID)
	if errors.Is(err, store.ErrNotFound) {
		return event, invalidField("eventID", "event %q does not exist", eventID)
	}
	if err != nil {
		return event, err
	}
	switch c.Role {
	case types.RoleClient:
		if event.Spec.ClientID != c.Subject {
			return event, forbidden("event %q belongs to another client", eventID)
		}
	case types.RoleManager:
		if err := s.managesHallID(ctx, c, event.Spec.HallID); err != nil {
			return event, err
		}
	}
	return event, nil
}

func newInvitationCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return invitationCodePrefix + strings.ToUpper(raw[:10])
}

func (s *Server) templates() *resource[types.Template] {
	return &resource[types.Template]{
		srv:      s,
		name:     types.ResourceTemplates,
		kind:     types.KindTemplate,
		noun:     "template",
		table:    s.store.Templates(),
		read:     allRoles,
		write:    []string{types.RoleAdmin},
		validate: validateTemplate,
		prepare: func(_ context.Context, _ auth.Claims, spec *types.Template, _ *model.Record[types.Template]) error {
			spec.Background = strings.ToUpper(spec.Background)
			spec.TextColor = strings.ToUpper(spec.TextColor)
			return nil
		},
	}
}

func (s *Server) reports() *resource[types.Report] {
	staff := []string{types.RoleAdmin, types.RoleManager, types.RoleEmployee}
	return &resource[types.Report]{
		srv:      s,
		name:     types.ResourceReports,
		kind:     types.KindReport,
		noun:     "report",
		table:    s.store.Reports(),
		read:     staff,
		write:    staff,
		validate: validateReport,
		prepare: func(ctx context.Context, c auth.Claims, spec *types.Report, _ *model.Record[types.Report]) error {
			if spec.Status == "" {
				spec.Status = types.ReportStatusOpen
			}
			hall, err := s.hall(ctx, spec.HallID)
			if err != nil {
				return err
			}
			if err := managesHall(c, hall); err != nil {
				return err
			}
			if spec.EventID == "" {
				return nil
			}
			event, err := s.store.Events().Get(ctx, spec.EventID)
			if errors.Is(err, store.ErrNotFound) {
				return invalidField("eventID", "event %q does not exist", spec.EventID)
			}
			if err != nil {
				return err
			}
			if event.Spec.HallID != spec.HallID {
				return invalidField("eventID", "event %q is not held in hall %q", spec.EventID, spec.HallID)
			}
			return nil
		},
		owns: func(ctx context.Context, c auth.Claims, rec model.Record[types.Report]) error {
			return s.managesHallID(ctx, c, rec.Spec.HallID)
		},
	}
}

func (s *Server) ratings() *resource[types.Rating] {
	return &resource[types.Rating]{
		srv:      s,
		name:     types.ResourceRatings,
		kind:     types.KindRating,
		noun:     "rating",
		table:    s.store.Ratings(),
		read:     allRoles,
		write:    []string{types.RoleAdmin, types.RoleClient},
		validate: validateRating,
		prepare: func(ctx context.Context, c auth.Claims, spec *types.Rating, current *model.Record[types.Rating]) error {
			switch {
			case c.Role == types.RoleClient:
				spec.ClientID = c.Subject
			case current != nil && spec.ClientID == "":
				spec.ClientID = current.Spec.ClientID
			case spec.ClientID == "":
				spec.ClientID = c.Subject
			}
			_, err := s.hall(ctx, spec.HallID)
			return err
		},
		owns: func(_ context.Context, c auth.Claims, rec model.Record[types.Rating]) error {
			if c.Role == types.RoleClient && rec.Spec.ClientID != c.Subject {
				return forbidden("rating %q belongs to another client", rec.ID)
			}
			return nil
		},
	}
}

// hall loads a parent hall, reporting a missing one as a field error.
func (s *Server) hall(ctx context.Context, id string) (model.Record[types.Hall], error) {
	hall, err := s.store.Halls().Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return hall, invalidField("hallID", "hall %q does not exist", id)
	}
	if err != nil {
		return hall, fmt.Errorf("loading hall %q: %w", id, err)
	}
	return hall, nil
}

func (s *Server) managesHallID(ctx context.Context, c auth.Claims, hallID string) error {
	if c.Role != types.RoleManager {
		return nil
	}
	hall, err := s.hall(ctx, hallID)
	if err != nil {
		return err
	}
	return managesHall(c, hall)
}

func managesHall(c auth.Claims, hall model.Record[types.Hall]) error {
	if c.Role == types.RoleManager && hall.Spec.ManagerID != c.Subject {
		return forbidden("hall %q is managed by another manager", hall.ID)
	}
	return nil
}
