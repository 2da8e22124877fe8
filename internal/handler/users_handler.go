/*
Package handler provides HTTP handler functions for inspecting the chat roster and
posting server announcements.
*/
package handler

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"tcpchat/internal/pkg/errs"
	"tcpchat/internal/pkg/logx"
	"tcpchat/internal/pkg/req"
	"tcpchat/internal/pkg/resp"
)

// AnnounceInput is the body of POST /api/announce.
type AnnounceInput struct {
	Message string `json:"message"`
}

// HandleListUsers returns the sorted roster snapshot.
func HandleListUsers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, deps.Registry.Snapshot())
	}
}

// HandleGetUser returns the roster entry for one nickname, matched case-insensitively.
func HandleGetUser(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		nickname, err := url.PathUnescape(chi.URLParam(r, "nickname"))
		if err != nil || strings.TrimSpace(nickname) == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		u, ok := deps.Registry.Lookup(nickname)
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrUserNotFound, nickname))
			return
		}

		resp.RespondSuccess(w, r, u.Snapshot())
	}
}

// HandleAnnounce broadcasts a system notice to every connected user.
func HandleAnnounce(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input AnnounceInput
		if err := req.BindJSON(w, r, &input); err != nil {
			resp.RespondError(w, r, err)
			return
		}

		message := strings.Join(strings.Fields(input.Message), " ")
		if message == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		recipients := deps.Registry.Len()
		deps.Registry.BroadcastSystem(message)

		logx.Info("Announcement broadcast.", "recipients", recipients)
		resp.RespondAccepted(w, r, map[string]int{"recipients": recipients})
	}
}
