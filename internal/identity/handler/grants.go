package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cernops/keystone/internal/identity/models"
	"github.com/cernops/keystone/pkg/ids"
	"github.com/cernops/keystone/pkg/platform/httputil"
)

func (h *Handler) parseMembership(r *http.Request) (models.Membership, error) {
	groupID, err := ids.ParseGroupID(chi.URLParam(r, "group_id"))
	if err != nil {
		return models.Membership{}, err
	}
	userID, err := ids.ParseUserID(chi.URLParam(r, "user_id"))
	if err != nil {
		return models.Membership{}, err
	}
	return models.Membership{GroupID: groupID, UserID: userID}, nil
}

func (h *Handler) HandleAddMembership(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	m, err := h.parseMembership(r)
	if err != nil {
		h.writeError(ctx, w, err, "invalid membership")
		return
	}
	if err := h.service.AddMembership(ctx, m); err != nil {
		h.writeError(ctx, w, err, "failed to add user to group")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleRemoveMembership(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	m, err := h.parseMembership(r)
	if err != nil {
		h.writeError(ctx, w, err, "invalid membership")
		return
	}
	if err := h.service.RemoveMembership(ctx, m); err != nil {
		h.writeError(ctx, w, err, "failed to remove user from group")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseActor reads the actor_kind and actor_id path parameters. The router
// only admits "users" and "groups" as actor_kind.
func parseActor(r *http.Request) (models.ActorKind, string, error) {
	kind := models.ActorUser
	if chi.URLParam(r, "actor_kind") == "groups" {
		kind = models.ActorGroup
	}
	id, err := ids.Parse(string(kind), chi.URLParam(r, "actor_id"))
	return kind, id, err
}

func parseGrant(r *http.Request, target models.TargetKind) (models.Grant, error) {
	actor, actorID, err := parseActor(r)
	if err != nil {
		return models.Grant{}, err
	}
	targetID, err := ids.Parse(string(target), chi.URLParam(r, string(target)+"_id"))
	if err != nil {
		return models.Grant{}, err
	}
	roleID, err := ids.ParseRoleID(chi.URLParam(r, "role_id"))
	if err != nil {
		return models.Grant{}, err
	}
	return models.Grant{
		RoleID:     roleID,
		ActorKind:  actor,
		ActorID:    actorID,
		TargetKind: target,
		TargetID:   targetID,
	}, nil
}

func (h *Handler) handleGrant(target models.TargetKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		g, err := parseGrant(r, target)
		if err != nil {
			h.writeError(ctx, w, err, "invalid role assignment")
			return
		}
		if err := h.service.Grant(ctx, g); err != nil {
			h.writeError(ctx, w, err, "failed to grant role")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleCheckGrant answers HEAD with 204 when the assignment exists. Error
// statuses carry no body.
func (h *Handler) handleCheckGrant(target models.TargetKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		g, err := parseGrant(r, target)
		if err == nil {
			err = h.service.CheckGrant(ctx, g)
		}
		if err != nil {
			h.writeError(ctx, w, err, "failed to check role assignment")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) handleRevokeGrant(target models.TargetKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		g, err := parseGrant(r, target)
		if err != nil {
			h.writeError(ctx, w, err, "invalid role assignment")
			return
		}
		if err := h.service.RevokeGrant(ctx, g); err != nil {
			h.writeError(ctx, w, err, "failed to revoke role")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) handleListGrants(target models.TargetKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, actorID, err := parseActor(r)
		if err != nil {
			h.writeError(ctx, w, err, "invalid role assignment")
			return
		}
		targetID, err := ids.Parse(string(target), chi.URLParam(r, string(target)+"_id"))
		if err != nil {
			h.writeError(ctx, w, err, "invalid role assignment")
			return
		}
		roles, err := h.service.ListGrantedRoles(ctx, actor, actorID, target, targetID)
		if err != nil {
			h.writeError(ctx, w, err, "failed to list role assignments")
			return
		}
		base := httputil.BaseURL(r, h.baseURL)
		httputil.WriteJSON(w, http.StatusOK, toRolesEnvelope(base, selfURL(base, r), roles))
	}
}
