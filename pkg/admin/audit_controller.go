// SPDX-FileCopyrightText: 2025 NSLNV
//
// SPDX-License-Identifier: Apache-2.0

package admin

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nslnv/leaddesk/pkg/apiresponses"
	"github.com/nslnv/leaddesk/pkg/audit"
	"github.com/nslnv/leaddesk/pkg/metrics"
	"github.com/nslnv/leaddesk/pkg/system"
)

const (
	defaultAuditPageSize = 50
	maxAuditPageSize     = 100
)

// AuditLister reads stored audit events, see audit.SQLSink
type AuditLister interface {
	List(ctx context.Context, opts audit.ListOptions) ([]audit.Record, int, error)
}

// AuditController serves the audit log to admins
type AuditController struct {
	events     AuditLister
	log        *zap.SugaredLogger
	middleware []gin.HandlerFunc
}

// NewAuditController creates the controller. middleware runs in front of every route.
func NewAuditController(log *zap.SugaredLogger, events AuditLister, middleware ...gin.HandlerFunc) *AuditController {
	return &AuditController{events: events, log: log, middleware: middleware}
}

func (*AuditController) BasePath() string {
	return "admin"
}

func (ac *AuditController) Handlers() []gin.HandlerFunc {
	return ac.middleware
}

func (ac *AuditController) Register(rg *gin.RouterGroup) error {
	rg.GET("/audit", metrics.Instrumented("list_audit", ac.handleList))
	return nil
}

func (ac *AuditController) handleList(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.Query("pageSize"))
	if pageSize < 1 {
		pageSize = defaultAuditPageSize
	}
	if pageSize > maxAuditPageSize {
		pageSize = maxAuditPageSize
	}
	level := audit.Level(c.Query("level"))
	if level != "" && !level.Valid() {
		apiresponses.RespondValidationError(c, []gin.H{{"field": "level", "message": "Level must be one of: info, warn, error"}})
		return
	}

	records, total, err := ac.events.List(c.Request.Context(), audit.ListOptions{
		Page:     page,
		PageSize: pageSize,
		Level:    level,
		Type:     audit.EventType(c.Query("type")),
	})
	if err != nil {
		apiresponses.RespondInternalError(c, "list audit events", err, system.GetReqLogger(c, ac.log))
		return
	}

	apiresponses.RespondOK(c, gin.H{
		"ok":         true,
		"events":     records,
		"pagination": apiresponses.NewPagination(page, pageSize, total),
	})
}
