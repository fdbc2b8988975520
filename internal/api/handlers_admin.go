package api

import (
	"context"
	"net/http"
	"strconv"

	"skillconnect/internal/export"
	"skillconnect/internal/models"

	"github.com/rs/zerolog"
)

type banRequest struct {
	Banned *bool `json:"banned" validate:"required"`
}

type verifyRequest struct {
	Verified *bool `json:"verified" validate:"required"`
}

type retargetRequest struct {
	TargetProviderID *int64 `json:"targetProviderId" validate:"omitempty,gt=0"`
}

func (s *HTTPServer) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.UserFilter{Role: q.Get("role"), Skill: q.Get("skill")}
	if raw := q.Get("banned"); raw != "" {
		banned, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "banned must be true or false")
			return
		}
		filter.Banned = &banned
	}

	users, err := s.deps.Users.ListUsers(r.Context(), currentUser(r), filter)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "users": users})
}

func (s *HTTPServer) handleBanUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	var req banRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}

	user, err := s.deps.Users.SetBanned(r.Context(), currentUser(r), id, *req.Banned)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": user})
}

func (s *HTTPServer) handleVerifyUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	var req verifyRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}

	user, err := s.deps.Users.SetVerified(r.Context(), currentUser(r), id, *req.Verified)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": user})
}

func (s *HTTPServer) handleAdminRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.ServiceRequestFilter{
		Skill:  q.Get("skill"),
		Status: q.Get("status"),
		Sort:   q.Get("sort"),
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))

	page, err := s.deps.Marketplace.ListServiceRequests(r.Context(), currentUser(r), filter)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *HTTPServer) handleRetargetRequest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	var req retargetRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}

	request, err := s.deps.Marketplace.RetargetServiceRequest(r.Context(), currentUser(r), id, req.TargetProviderID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "request": request})
}

// report adapts a report getter to a {data: ...} handler.
func report[T any](get func(ctx context.Context) (T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := get(r.Context())
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": data})
	}
}

func (s *HTTPServer) handleReportTotals(w http.ResponseWriter, r *http.Request) {
	report(s.deps.Reports.Totals)(w, r)
}

func (s *HTTPServer) handleReportDemographics(w http.ResponseWriter, r *http.Request) {
	report(s.deps.Reports.Demographics)(w, r)
}

func (s *HTTPServer) handleReportSkills(w http.ResponseWriter, r *http.Request) {
	report(s.deps.Reports.Skills)(w, r)
}

func (s *HTTPServer) handleReportSkilledPerTrade(w http.ResponseWriter, r *http.Request) {
	report(s.deps.Reports.SkilledPerTrade)(w, r)
}

func (s *HTTPServer) handleReportMostBooked(w http.ResponseWriter, r *http.Request) {
	report(s.deps.Reports.MostBookedServices)(w, r)
}

func (s *HTTPServer) handleReportTotalsOverTime(w http.ResponseWriter, r *http.Request) {
	report(s.deps.Reports.TotalsOverTime)(w, r)
}

func (s *HTTPServer) handleReportExport(w http.ResponseWriter, r *http.Request) {
	bundle, err := s.deps.Reports.Bundle(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName(bundle.GeneratedAt)+`"`)
	if err := export.Write(w, bundle); err != nil {
		// Headers are gone by now; the client sees a truncated file.
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("write report workbook")
	}
}
