package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/cartogra/cartogra/internal/api/service"
	"github.com/cartogra/cartogra/internal/api/store"
	"github.com/cartogra/cartogra/pkg/httpx"
	"github.com/cartogra/cartogra/pkg/slogx"
)

// OrganizationHandler serves tenant-scoped organization endpoints. The
// organization is always the caller's own; there is no cross-tenant lookup.
type OrganizationHandler struct {
	UserService *service.UserService
}

type organizationResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Active    bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// HandleCurrent returns the caller's organization.
func (h *OrganizationHandler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, _ := httpx.IdentityFromContext(ctx)

	org, err := h.UserService.GetOrganizationByID(ctx, id.OrgID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.WriteBearerError(w, "unknown organization")
			return
		}
		slogx.FromContext(ctx).Error("failed to load organization", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "failed to load organization")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, organizationResponse{
		ID:        org.ID,
		Name:      org.Name,
		Slug:      org.Slug,
		Active:    org.Active,
		CreatedAt: org.CreatedAt,
	})
}
