package server

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/MCT-Salman/invocca/internal/auth"
	"github.com/MCT-Salman/invocca/internal/httputil"
	"github.com/MCT-Salman/invocca/internal/model"
	"github.com/MCT-Salman/invocca/pkg/types"
)

// handleDashboard serves the summary figures. Managers see their own halls
// and clients their own events; admins and employees see everything.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.Ctx(ctx).With().Str("handler", "Dashboard").Logger()

	claims, _ := auth.ClaimsFromContext(ctx)
	var scope model.Scope
	switch claims.Role {
	case types.RoleManager:
		scope.ManagerID = claims.Subject
	case types.RoleClient:
		scope.ClientID = claims.Subject
	}

	summary, err := s.store.Dashboard(ctx, scope)
	if err != nil {
		logger.Error().Err(err).Msg("failed to compute dashboard")
		httputil.RespondProblem(w, r, http.StatusInternalServerError, "an unexpected error occurred")
		return
	}

	httputil.RespondJSON(w, http.StatusOK, types.Resource[types.Dashboard]{
		Kind:       types.KindDashboard,
		APIVersion: types.APIVersion,
		Metadata:   types.ResourceMetadata{ID: "dashboard"},
		Spec:       summary,
	})
}
