package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/MCT-Salman/invocca/internal/audit"
	"github.com/MCT-Salman/invocca/internal/auth"
	"github.com/MCT-Salman/invocca/internal/events"
	"github.com/MCT-Salman/invocca/internal/httputil"
	"github.com/MCT-Salman/invocca/internal/model"
	"github.com/MCT-Salman/invocca/internal/store"
	"github.com/MCT-Salman/invocca/pkg/capacity"
	"github.com/MCT-Salman/invocca/pkg/types"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200

	publishTimeout = 5 * time.Second
)

// resource serves the CRUD routes of one collection. The hooks carry the
// per-resource rules; nil hooks allow everything.
type resource[S any] struct {
	srv   *Server
	name  string
	kind  string
	noun  string
	table store.Table[S]
	read  []string
	write []string

	// scope narrows list filters to what the caller may see.
	scope func(ctx context.Context, c auth.Claims, filters map[string]string) error
	// visible reports whether the caller may read rec.
	visible func(ctx context.Context, c auth.Claims, rec model.Record[S]) bool
	// owns reports whether the caller may modify or delete rec.
	owns func(ctx context.Context, c auth.Claims, rec model.Record[S]) error
	// prepare normalises spec and applies cross-record rules before a
	// write. current is nil on create.
	prepare func(ctx context.Context, c auth.Claims, spec *S, current *model.Record[S]) error
	// validate checks the spec in isolation.
	validate func(spec S) []types.ValidationError
}

func mount[S any](r chi.Router, res *resource[S]) {
	r.Route("/"+res.name, func(r chi.Router) {
		r.With(requireAnyRole(res.read...)).Get("/", res.handleList)
		r.With(res.audited(types.ActionCreated), requireAnyRole(res.write...)).Post("/", res.handleCreate)
		r.With(requireAnyRole(res.read...)).Get("/{id}", res.handleGet)
		r.With(res.audited(types.ActionUpdated), requireAnyRole(res.write...)).Put("/{id}", res.handleReplace)
		r.With(res.audited(types.ActionUpdated), requireAnyRole(res.write...)).Patch("/{id}", res.handlePatch)
		r.With(res.audited(types.ActionDeleted), requireAnyRole(res.write...)).Delete("/{id}", res.handleDelete)
	})
}

func (res *resource[S]) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.Ctx(ctx).With().Str("handler", "List").Str("resource", res.name).Logger()

	limit, offset, err := parsePagination(r)
	if err != nil {
		httputil.RespondProblem(w, r, http.StatusBadRequest, err.Error())
		return
	}

	filters := parseFilters(r)
	claims, _ := auth.ClaimsFromContext(ctx)
	if res.scope != nil {
		if err := res.scope(ctx, claims, filters); err != nil {
			res.respondError(w, r, err)
			return
		}
	}

	items, total, err := res.table.List(ctx, store.ListOptions{Limit: limit, Offset: offset, Filters: filters})
	if err != nil {
		if errors.Is(err, store.ErrInvalidFilter) {
			httputil.RespondProblem(w, r, http.StatusBadRequest, err.Error())
			return
		}
		logger.Error().Err(err).Msg("failed to list records")
		httputil.RespondProblem(w, r, http.StatusInternalServerError, "an unexpected error occurred")
		return
	}

	httputil.RespondJSON(w, http.StatusOK, toResourceList(res.kind, items, total, limit, offset))
}

func (res *resource[S]) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, ok := res.load(w, r)
	if !ok {
		return
	}

	etag := rec.ETag()
	w.Header().Set("ETag", etag)
	if match := r.Header.Get("If-None-Match"); match != "" && strings.TrimSpace(match) == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, toResource(res.kind, rec))
}

func (res *resource[S]) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var spec S
	if err := httputil.DecodeJSON(r, &spec); err != nil {
		httputil.RespondProblemf(w, r, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}

	claims, _ := auth.ClaimsFromContext(ctx)
	if err := res.check(ctx, claims, &spec, nil); err != nil {
		res.respondError(w, r, err)
		return
	}

	created, err := res.table.Create(ctx, model.Record[S]{Spec: spec})
	if err != nil {
		res.respondError(w, r, err)
		return
	}
	res.publish(ctx, types.ActionCreated, created.ID)

	w.Header().Set("Location", fmt.Sprintf("%s/%s/%s", apiPrefix, res.name, created.ID))
	w.Header().Set("ETag", created.ETag())
	httputil.RespondJSON(w, http.StatusCreated, toResource(res.kind, created))
}

func (res *resource[S]) handleReplace(w http.ResponseWriter, r *http.Request) {
	current, ok := res.loadOwned(w, r)
	if !ok {
		return
	}

	var spec S
	if err := httputil.DecodeJSON(r, &spec); err != nil {
		httputil.RespondProblemf(w, r, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	res.update(w, r, current, spec)
}

// handlePatch applies a JSON merge patch onto the current spec.
func (res *resource[S]) handlePatch(w http.ResponseWriter, r *http.Request) {
	current, ok := res.loadOwned(w, r)
	if !ok {
		return
	}

	var patch map[string]json.RawMessage
	if err := httputil.DecodeJSON(r, &patch); err != nil {
		httputil.RespondProblemf(w, r, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	spec, err := mergePatch(current.Spec, patch)
	if err != nil {
		httputil.RespondProblemf(w, r, http.StatusBadRequest, "invalid patch: %v", err)
		return
	}
	res.update(w, r, current, spec)
}

func (res *resource[S]) update(w http.ResponseWriter, r *http.Request, current model.Record[S], spec S) {
	ctx := r.Context()

	if ifMatch := strings.TrimSpace(r.Header.Get("If-Match")); ifMatch != "" && ifMatch != "*" && ifMatch != current.ETag() {
		httputil.RespondProblem(w, r, http.StatusPreconditionFailed,
			"the resource has been modified since you last retrieved it; re-fetch and retry")
		return
	}

	claims, _ := auth.ClaimsFromContext(ctx)
	if err := res.check(ctx, claims, &spec, &current); err != nil {
		res.respondError(w, r, err)
		return
	}

	updated, err := res.table.Update(ctx, model.Record[S]{ID: current.ID, Spec: spec})
	if err != nil {
		res.respondError(w, r, err)
		return
	}
	res.publish(ctx, types.ActionUpdated, updated.ID)

	w.Header().Set("ETag", updated.ETag())
	httputil.RespondJSON(w, http.StatusOK, toResource(res.kind, updated))
}

func (res *resource[S]) handleDelete(w http.ResponseWriter, r *http.Request) {
	current, ok := res.loadOwned(w, r)
	if !ok {
		return
	}
	if ifMatch := strings.TrimSpace(r.Header.Get("If-Match")); ifMatch != "" && ifMatch != "*" && ifMatch != current.ETag() {
		httputil.RespondProblem(w, r, http.StatusPreconditionFailed,
			"the resource has been modified since you last retrieved it; re-fetch and retry")
		return
	}

	if err := res.table.Delete(r.Context(), current.ID); err != nil {
		res.respondError(w, r, err)
		return
	}
	res.publish(r.Context(), types.ActionDeleted, current.ID)
	w.WriteHeader(http.StatusNoContent)
}

// check runs prepare then validate.
func (res *resource[S]) check(ctx context.Context, c auth.Claims, spec *S, current *model.Record[S]) error {
	if res.validate != nil {
		if errs := res.validate(*spec); len(errs) > 0 {
			return validationError(errs...)
		}
	}
	if res.prepare != nil {
		if err := res.prepare(ctx, c, spec, current); err != nil {
			return err
		}
	}
	if res.validate != nil {
		if errs := res.validate(*spec); len(errs) > 0 {
			return validationError(errs...)
		}
	}
	return nil
}

// load fetches the record named in the URL, answering 404 for records the
// caller may not see.
func (res *resource[S]) load(w http.ResponseWriter, r *http.Request) (model.Record[S], bool) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if id == "" {
		httputil.RespondProblem(w, r, http.StatusBadRequest, "missing resource id in URL path")
		return model.Record[S]{}, false
	}

	rec, err := res.table.Get(ctx, id)
	if err != nil {
		res.respondError(w, r, err)
		return model.Record[S]{}, false
	}
	claims, _ := auth.ClaimsFromContext(ctx)
	if res.visible != nil && !res.visible(ctx, claims, rec) {
		httputil.RespondProblemf(w, r, http.StatusNotFound, "%s %q not found", res.noun, id)
		return model.Record[S]{}, false
	}
	return rec, true
}

func (res *resource[S]) loadOwned(w http.ResponseWriter, r *http.Request) (model.Record[S], bool) {
	rec, ok := res.load(w, r)
	if !ok {
		return rec, false
	}
	if res.owns != nil {
		claims, _ := auth.ClaimsFromContext(r.Context())
		if err := res.owns(r.Context(), claims, rec); err != nil {
			res.respondError(w, r, err)
			return model.Record[S]{}, false
		}
	}
	return rec, true
}

// publish announces a committed change. Delivery failures are logged and
// never fail the request.
func (res *resource[S]) publish(ctx context.Context, action, id string) {
	logger := log.Ctx(ctx)
	ev, err := events.NewChangeEvent(types.Change{Resource: res.name, Action: action, ID: id})
	if err != nil {
		logger.Error().Err(err).Msg("failed to build change event")
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := events.Multi([]events.Publisher{res.srv.hub, res.srv.publisher}).Publish(pubCtx, ev); err != nil {
		logger.Warn().Err(err).Str("type", ev.Type).Str("subject", ev.Subject).Msg("failed to publish change event")
	}
}

func (res *resource[S]) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var p *problem
	var exceeded *capacity.ExceededError
	switch {
	case errors.As(err, &p):
		p.write(w, r)
	case errors.As(err, &exceeded):
		httputil.RespondValidationProblem(w, r, []types.ValidationError{{Field: "numOfPeople", Message: exceeded.Error()}})
	case errors.Is(err, store.ErrBelowBooked):
		httputil.RespondValidationProblem(w, r, []types.ValidationError{{Field: "guestCapacity", Message: err.Error()}})
	case errors.Is(err, store.ErrReference):
		httputil.RespondProblem(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, store.ErrNotFound):
		id := chi.URLParam(r, "id")
		httputil.RespondProblemf(w, r, http.StatusNotFound, "%s %q not found", res.noun, id)
	case errors.Is(err, store.ErrConflict):
		httputil.RespondProblemf(w, r, http.StatusConflict, "a %s with these details already exists", res.noun)
	case errors.Is(err, store.ErrInUse):
		httputil.RespondProblemf(w, r, http.StatusConflict, "the %s is still referenced by other records", res.noun)
	case errors.Is(err, store.ErrInvalidFilter):
		httputil.RespondProblem(w, r, http.StatusBadRequest, err.Error())
	default:
		log.Ctx(r.Context()).Error().Err(err).Str("resource", res.name).Msg("request failed")
		httputil.RespondProblem(w, r, http.StatusInternalServerError, "an unexpected error occurred")
	}
}

// audited records one audit entry per mutating request, including
// requests rejected by the role check.
func (res *resource[S]) audited(action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if res.srv.audit == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			var body bytes.Buffer
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&body)

			next.ServeHTTP(ww, r)

			id := chi.URLParam(r, "id")
			if id == "" {
				id = path.Base(ww.Header().Get("Location"))
			}
			claims, _ := auth.ClaimsFromContext(r.Context())
			m := audit.Mutation{
				RequestID:  httputil.RequestIDFromContext(r.Context()),
				Resource:   res.name,
				Action:     action,
				TargetID:   strings.TrimPrefix(id, "."),
				CallerSub:  claims.Subject,
				CallerRole: claims.Role,
				StatusCode: ww.Status(),
				Duration:   time.Since(start),
			}
			if m.StatusCode >= http.StatusBadRequest {
				m.ErrorDetail = audit.ProblemDetail(body.Bytes())
			}
			res.srv.audit.Record(m)
		})
	}
}

func parsePagination(r *http.Request) (int, int, error) {
	limit := defaultPageLimit
	offset := 0

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return 0, 0, fmt.Errorf("invalid limit %q: must be a positive integer", v)
		}
		limit = min(n, maxPageLimit)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, 0, fmt.Errorf("invalid offset %q: must be a non-negative integer", v)
		}
		offset = n
	}
	return limit, offset, nil
}

// parseFilters treats every query parameter other than paging as an
// equality filter.
func parseFilters(r *http.Request) map[string]string {
	filters := map[string]string{}
	for key, values := range r.URL.Query() {
		if key == "limit" || key == "offset" || len(values) == 0 {
			continue
		}
		if v := strings.TrimSpace(values[0]); v != "" {
			filters[key] = v
		}
	}
	return filters
}

// mergePatch applies an RFC 7386 merge patch to a flat spec. A null member
// resets the field to its zero value.
func mergePatch[S any](current S, patch map[string]json.RawMessage) (S, error) {
	base, err := json.Marshal(current)
	if err != nil {
		return current, err
	}
	doc := map[string]json.RawMessage{}
	if err := json.Unmarshal(base, &doc); err != nil {
		return current, err
	}
	for key, value := range patch {
		if bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			delete(doc, key)
			continue
		}
		doc[key] = value
	}

	merged, err := json.Marshal(doc)
	if err != nil {
		return current, err
	}
	var out S
	dec := json.NewDecoder(bytes.NewReader(merged))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return current, err
	}
	return out, nil
}
