package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"forms-response-service/internal/app"
	"forms-response-service/internal/domain"
)

// ReportHandler serves aggregated reports to viewers identified by the request layer.
// Authentication happens upstream; X-Viewer-Id and X-Viewer-Role are trusted as given.
type ReportHandler struct {
	reports     *app.Aggregator
	submissions *app.SubmissionService
	audit       app.AuditSink
	now         func() time.Time
}

func NewReportHandler(reports *app.Aggregator, submissions *app.SubmissionService, audit app.AuditSink) *ReportHandler {
	return &ReportHandler{
		reports:     reports,
		submissions: submissions,
		audit:       audit,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Register mounts the report and audit routes.
func (h *ReportHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /reports/{formID}", h.ServeReport)
	mux.HandleFunc("GET /reports/{formID}/stats", h.ServeStats)
	mux.HandleFunc("GET /audit/groups/{groupID}", h.ServeAuditRespondent)
}

type viewer struct {
	id   string
	role domain.Role
}

func viewerOf(r *http.Request) (viewer, error) {
	role, err := domain.ParseRole(r.Header.Get("X-Viewer-Role"))
	if err != nil {
		return viewer{}, err
	}
	id := r.Header.Get("X-Viewer-Id")
	if id == "" {
		return viewer{}, fmt.Errorf("%w: missing viewer id", domain.ErrInvalidRole)
	}
	return viewer{id: id, role: role}, nil
}

type reportsResponse struct {
	Reports []domain.FormReport `json:"reports"`
}

// ServeReport returns every class for form-level viewers and only the viewer's own classes
// for instructors.
func (h *ReportHandler) ServeReport(w http.ResponseWriter, r *http.Request) {
	formID := r.PathValue("formID")
	classID := r.URL.Query().Get("classId")

	var reports []domain.FormReport
	err := h.audited(r, domain.ActionViewReport, fmt.Sprintf("view report of form %s", formID), func(ctx context.Context, v viewer) error {
		switch {
		case v.role.Can(domain.CapViewFormReports):
			report, err := h.reports.AggregateForm(ctx, formID, classID)
			if err != nil {
				return err
			}
			reports = []domain.FormReport{report}
			return nil
		case v.role.Can(domain.CapViewClassReports):
			own, err := h.reports.AggregateByInstructor(ctx, v.id, formID)
			if err != nil {
				return err
			}
			reports = make([]domain.FormReport, 0, len(own))
			for _, report := range own {
				if classID == "" || report.ClassID == classID {
					reports = append(reports, report)
				}
			}
			return nil
		default:
			return domain.ErrRoleNotPermitted
		}
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reportsResponse{Reports: reports})
}

func (h *ReportHandler) ServeStats(w http.ResponseWriter, r *http.Request) {
	formID := r.PathValue("formID")

	var stats domain.FormStats
	err := h.audited(r, domain.ActionViewReport, fmt.Sprintf("view stats of form %s", formID), func(ctx context.Context, v viewer) error {
		if !v.role.Can(domain.CapViewFormReports) {
			return domain.ErrRoleNotPermitted
		}
		var err error
		stats, err = h.reports.FormStats(ctx, formID)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type auditRespondentResponse struct {
	GroupID      string `json:"groupId"`
	RespondentID string `json:"respondentId"`
}

// ServeAuditRespondent exposes the group to respondent lookup to audit viewers only.
func (h *ReportHandler) ServeAuditRespondent(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("groupID")

	var respondentID string
	err := h.audited(r, domain.ActionAuditLookup, fmt.Sprintf("resolve respondent of group %s", groupID), func(ctx context.Context, v viewer) error {
		if !v.role.Can(domain.CapViewAudit) {
			return domain.ErrRoleNotPermitted
		}
		var err error
		respondentID, err = h.submissions.AuditRespondent(ctx, groupID)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, auditRespondentResponse{GroupID: groupID, RespondentID: respondentID})
}

func (h *ReportHandler) audited(r *http.Request, action, description string, fn func(ctx context.Context, v viewer) error) error {
	client := clientInfo(r)
	ctx := app.WithClientInfo(r.Context(), client)

	v, err := viewerOf(r)
	if err == nil {
		err = fn(ctx, v)
	}
	if h.audit != nil {
		rec := domain.AuditRecord{
			RespondentID: v.id,
			Action:       action,
			Description:  description,
			Category:     domain.AuditCategoryReport,
			Client:       client,
			Outcome:      app.OutcomeOf(err),
			At:           h.now(),
		}
		if err != nil {
			rec.ErrorDetail = err.Error()
		}
		h.audit.Record(ctx, rec)
	}
	return err
}
