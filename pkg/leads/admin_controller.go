// SPDX-FileCopyrightText: 2025 NSLNV
//
// SPDX-License-Identifier: Apache-2.0

package leads

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nslnv/leaddesk/pkg/apiresponses"
	"github.com/nslnv/leaddesk/pkg/audit"
	"github.com/nslnv/leaddesk/pkg/metrics"
	"github.com/nslnv/leaddesk/pkg/session"
	"github.com/nslnv/leaddesk/pkg/system"
)

// Admin actions accepted by POST /api/admin/leads
const (
	ActionExportCSV  = "export_csv"
	ActionExportXLSX = "export_xlsx"
	ActionBulkDelete = "bulk_delete"
)

const maxStatsDays = 365

// AdminController serves the lead desk API behind the session guard
type AdminController struct {
	store      *Store
	log        *zap.SugaredLogger
	audit      audit.Emitter
	middleware []gin.HandlerFunc
	now        func() time.Time
}

// NewAdminController creates the controller. middleware runs in front of every route.
func NewAdminController(log *zap.SugaredLogger, store *Store, middleware ...gin.HandlerFunc) *AdminController {
	return &AdminController{
		store:      store,
		log:        log,
		audit:      audit.Nop{},
		middleware: middleware,
		now:        time.Now,
	}
}

// WithAuditService sets where admin actions are reported
func (ac *AdminController) WithAuditService(e audit.Emitter) *AdminController {
	if e != nil {
		ac.audit = e
	}
	return ac
}

func (*AdminController) BasePath() string {
	return "admin"
}

func (ac *AdminController) Handlers() []gin.HandlerFunc {
	return ac.middleware
}

func (ac *AdminController) Register(rg *gin.RouterGroup) error {
	rg.GET("/leads", metrics.Instrumented("list_leads", ac.handleList))
	rg.POST("/leads", metrics.Instrumented("lead_actions", ac.handleAction))
	rg.GET("/leads/:id", metrics.Instrumented("get_lead", ac.handleGet))
	rg.PATCH("/leads/:id", metrics.Instrumented("update_lead", ac.handleUpdate))
	rg.DELETE("/leads/:id", metrics.Instrumented("delete_lead", ac.handleDelete))
	rg.GET("/dashboard", metrics.Instrumented("dashboard", ac.handleDashboard))
	return nil
}

func adminName(c *gin.Context) string {
	if id, ok := session.IdentityFromGin(c); ok {
		return id.Username
	}
	return ""
}

// parseDate accepts YYYY-MM-DD or RFC3339. A bare date used as an upper
// bound covers the whole day.
func parseDate(raw string, endOfDay bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Millisecond)
	}
	return &t, nil
}

func (ac *AdminController) handleList(c *gin.Context) {
	reqLog := system.GetReqLogger(c, ac.log)

	page, _ := strconv.Atoi(c.Query("page"))
	pageSize, _ := strconv.Atoi(c.Query("pageSize"))
	f := Filter{
		Page:     page,
		PageSize: pageSize,
		Search:   strings.TrimSpace(c.Query("search")),
		Status:   Status(c.Query("status")),
		WorkType: c.Query("workType"),
		Source:   c.Query("source"),
		Sort:     c.Query("sort"),
		Order:    c.Query("order"),
	}

	var details []FieldError
	dateFrom, dateTo := c.Query("dateFrom"), c.Query("dateTo")
	var err error
	if f.DateFrom, err = parseDate(dateFrom, false); err != nil {
		details = append(details, FieldError{Field: "dateFrom", Message: "Invalid date, expected YYYY-MM-DD"})
	}
	if f.DateTo, err = parseDate(dateTo, true); err != nil {
		details = append(details, FieldError{Field: "dateTo", Message: "Invalid date, expected YYYY-MM-DD"})
	}
	if len(details) > 0 {
		apiresponses.RespondValidationError(c, details)
		return
	}

	f.Normalize()
	leads, total, err := ac.store.List(c.Request.Context(), f)
	if err != nil {
		apiresponses.RespondInternalError(c, "list leads", err, reqLog)
		return
	}

	apiresponses.RespondOK(c, gin.H{
		"ok":         true,
		"leads":      leads,
		"pagination": apiresponses.NewPagination(f.Page, f.PageSize, total),
		"filters": gin.H{
			"availableStatuses": Statuses,
			"search":            f.Search,
			"status":            f.Status,
			"workType":          f.WorkType,
			"source":            f.Source,
			"dateFrom":          dateFrom,
			"dateTo":            dateTo,
			"sort":              f.Sort,
			"order":             f.Order,
		},
	})
}

// leadID parses the :id route parameter and answers 400 when it is not a positive integer
func leadID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		apiresponses.RespondError(c, http.StatusBadRequest, CodeInvalidID, "Valid ID is required")
		return 0, false
	}
	return id, true
}

func respondLeadNotFound(c *gin.Context) {
	apiresponses.RespondError(c, http.StatusNotFound, CodeLeadNotFound, "Lead not found")
}

func (ac *AdminController) handleGet(c *gin.Context) {
	id, ok := leadID(c)
	if !ok {
		return
	}
	lead, err := ac.store.Get(c.Request.Context(), id)
	if errors.Is(err, ErrNotFound) {
		respondLeadNotFound(c)
		return
	}
	if err != nil {
		apiresponses.RespondInternalError(c, "load lead", err, system.GetReqLogger(c, ac.log))
		return
	}

	ac.audit.Emit(c.Request.Context(), audit.NewEvent(audit.EventLeadViewed, "Admin viewed lead details",
		map[string]interface{}{"adminUsername": adminName(c), "leadId": id, "leadEmail": lead.Email}))
	apiresponses.RespondOK(c, gin.H{"ok": true, "lead": lead})
}

func (ac *AdminController) handleUpdate(c *gin.Context) {
	id, ok := leadID(c)
	if !ok {
		return
	}
	reqLog := system.GetReqLogger(c, ac.log)

	var u Update
	if err := c.ShouldBindJSON(&u); err != nil {
		apiresponses.RespondBindError(c, err, "Invalid JSON body")
		return
	}
	u.Normalize()
	if err := u.Validate(); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			apiresponses.RespondValidationError(c, verr.Fields)
			return
		}
		apiresponses.RespondInternalError(c, "validate lead update", err, reqLog)
		return
	}

	lead, changes, err := ac.store.Update(c.Request.Context(), id, u)
	if errors.Is(err, ErrNotFound) {
		respondLeadNotFound(c)
		return
	}
	if err != nil {
		apiresponses.RespondInternalError(c, "update lead", err, reqLog)
		return
	}

	if !u.Empty() {
		metrics.LeadsUpdated.Inc()
		ac.audit.Emit(c.Request.Context(), audit.NewEvent(audit.EventLeadUpdated, "Admin updated lead",
			map[string]interface{}{"adminUsername": adminName(c), "leadId": id, "changes": changes}))
	}
	reqLog.Infow("Lead updated", "leadId", id, "fields", len(changes))

	apiresponses.RespondOK(c, gin.H{
		"ok":      true,
		"lead":    lead,
		"message": "Lead updated successfully",
	})
}

func (ac *AdminController) handleDelete(c *gin.Context) {
	id, ok := leadID(c)
	if !ok {
		return
	}
	reqLog := system.GetReqLogger(c, ac.log)

	lead, err := ac.store.Delete(c.Request.Context(), id)
	if errors.Is(err, ErrNotFound) {
		respondLeadNotFound(c)
		return
	}
	if err != nil {
		apiresponses.RespondInternalError(c, "delete lead", err, reqLog)
		return
	}

	metrics.LeadsDeleted.Inc()
	ac.audit.Emit(c.Request.Context(), audit.NewEvent(audit.EventLeadDeleted, "Admin deleted lead",
		map[string]interface{}{
			"adminUsername": adminName(c),
			"leadId":        id,
			"leadName":      lead.Name,
			"leadEmail":     lead.Email,
		}))
	reqLog.Infow("Lead deleted", "leadId", id)

	apiresponses.RespondOK(c, gin.H{"ok": true, "message": "Lead deleted successfully"})
}

type actionRequest struct {
	Action string        `json:"action"`
	IDs    []interface{} `json:"ids"`
}

func (ac *AdminController) handleAction(c *gin.Context) {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiresponses.RespondBindError(c, err, "Invalid JSON body")
		return
	}

	switch req.Action {
	case ActionExportCSV:
		ac.export(c, FormatCSV)
	case ActionExportXLSX:
		ac.export(c, FormatXLSX)
	case ActionBulkDelete:
		ac.bulkDelete(c, req.IDs)
	default:
		apiresponses.RespondError(c, http.StatusBadRequest, CodeInvalidAction,
			"Invalid action. Supported actions: export_csv, export_xlsx, bulk_delete")
	}
}

func (ac *AdminController) export(c *gin.Context, format string) {
	reqLog := system.GetReqLogger(c, ac.log)
	f := ExportFilter{
		Status:   Status(c.Query("status")),
		WorkType: c.Query("workType"),
		Source:   c.Query("source"),
	}
	leads, err := ac.store.Export(c.Request.Context(), f)
	if err != nil {
		apiresponses.RespondInternalError(c, "export leads", err, reqLog)
		return
	}

	var (
		buf         bytes.Buffer
		contentType string
	)
	switch format {
	case FormatXLSX:
		contentType = ContentTypeXLSX
		err = WriteXLSX(&buf, leads)
	default:
		contentType = "text/csv"
		err = WriteCSV(&buf, leads)
	}
	if err != nil {
		apiresponses.RespondInternalError(c, "render lead export", err, reqLog)
		return
	}

	metrics.LeadsExported.WithLabelValues(format).Add(float64(len(leads)))
	ac.audit.Emit(c.Request.Context(), audit.NewEvent(audit.EventLeadsExported,
		fmt.Sprintf("Admin exported leads to %s", strings.ToUpper(format)), map[string]interface{}{
			"adminUsername": adminName(c),
			"leadCount":     len(leads),
			"format":        format,
			"filters":       map[string]string{"status": string(f.Status), "workType": f.WorkType, "source": f.Source},
		}))

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, ExportFilename(format, ac.now())))
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

// parseIDs keeps the ids that are integral numbers or numeric strings
func parseIDs(raw []interface{}) []int64 {
	seen := make(map[int64]struct{}, len(raw))
	ids := make([]int64, 0, len(raw))
	for _, v := range raw {
		var id int64
		switch x := v.(type) {
		case float64:
			if x != math.Trunc(x) || x < 1 || x > math.MaxInt64 {
				continue
			}
			id = int64(x)
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
			if err != nil || n < 1 {
				continue
			}
			id = n
		default:
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

func (ac *AdminController) bulkDelete(c *gin.Context, raw []interface{}) {
	if len(raw) == 0 {
		apiresponses.RespondError(c, http.StatusBadRequest, CodeInvalidIDs, "Valid IDs array is required for bulk delete")
		return
	}
	ids := parseIDs(raw)
	if len(ids) == 0 {
		apiresponses.RespondError(c, http.StatusBadRequest, CodeInvalidIDs, "No valid numeric IDs provided")
		return
	}

	deleted, err := ac.store.BulkDelete(c.Request.Context(), ids)
	if err != nil {
		apiresponses.RespondInternalError(c, "bulk delete leads", err, system.GetReqLogger(c, ac.log))
		return
	}

	metrics.LeadsDeleted.Add(float64(deleted))
	ac.audit.Emit(c.Request.Context(), audit.NewEvent(audit.EventLeadsBulkDelete, "Admin bulk deleted leads",
		map[string]interface{}{
			"adminUsername":  adminName(c),
			"deletedLeadIds": ids,
			"deletedCount":   deleted,
		}))

	apiresponses.RespondOK(c, gin.H{
		"ok":           true,
		"message":      fmt.Sprintf("Successfully deleted %d leads", deleted),
		"deletedCount": deleted,
	})
}

func (ac *AdminController) handleDashboard(c *gin.Context) {
	days := DefaultStatsDays
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxStatsDays {
			apiresponses.RespondValidationError(c, []FieldError{{Field: "days", Message: "days must be between 1 and 365"}})
			return
		}
		days = n
	}
	stats, err := ac.store.Stats(c.Request.Context(), days)
	if err != nil {
		apiresponses.RespondInternalError(c, "compute dashboard stats", err, system.GetReqLogger(c, ac.log))
		return
	}
	apiresponses.RespondOK(c, gin.H{"ok": true, "stats": stats, "days": days})
}
