// SPDX-FileCopyrightText: 2025 NSLNV
//
// SPDX-License-Identifier: Apache-2.0

package leads

import (
	"errors"
	"time"
)

// Status is the processing state of a lead
type Status string

const (
	StatusNew        Status = "new"
	StatusRead       Status = "read"
	StatusInProgress Status = "in_progress"
	StatusClosed     Status = "closed"
	StatusArchived   Status = "archived"
)

// Statuses lists every valid status in workflow order
var Statuses = []Status{StatusNew, StatusRead, StatusInProgress, StatusClosed, StatusArchived}

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// DefaultSource is stored when a submission does not name one
const DefaultSource = "website"

// ErrNotFound is returned when a lead id does not exist
var ErrNotFound = errors.New("lead not found")

// Lead is a contact request submitted through the site
type Lead struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Phone       *string   `json:"phone"`
	WorkType    string    `json:"workType"`
	Deadline    *string   `json:"deadline"`
	Budget      *string   `json:"budget"`
	Description string    `json:"description"`
	Source      *string   `json:"source"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Sort columns accepted by List, keyed by their API name
var sortColumns = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"name":      "name",
	"email":     "email",
	"status":    "status",
	"workType":  "work_type",
}

// Filter narrows and orders a lead listing
type Filter struct {
	Page     int
	PageSize int
	Search   string
	Status   Status
	WorkType string
	Source   string
	// DateFrom and DateTo bound created_at inclusively
	DateFrom *time.Time
	DateTo   *time.Time
	Sort     string
	Order    string
}

// Pagination limits
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize clamps paging and replaces unknown sort keys and statuses with defaults
func (f *Filter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	if _, ok := sortColumns[f.Sort]; !ok {
		f.Sort = "createdAt"
	}
	if f.Order != "asc" {
		f.Order = "desc"
	}
	if f.Status != "" && !f.Status.Valid() {
		f.Status = ""
	}
}

// ExportFilter selects leads for export
type ExportFilter struct {
	Status   Status
	WorkType string
	Source   string
}

// Change is one field modified by an update
type Change struct {
	From interface{} `json:"from"`
	To   interface{} `json:"to"`
}

// DailyCount is the number of leads created on one day (YYYY-MM-DD)
type DailyCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

// NamedCount pairs a value with how often it occurs
type NamedCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Stats summarises the lead desk for the dashboard
type Stats struct {
	Total        int            `json:"total"`
	ByStatus     map[Status]int `json:"byStatus"`
	PerDay       []DailyCount   `json:"perDay"`
	TopWorkTypes []NamedCount   `json:"topWorkTypes"`
	TopSources   []NamedCount   `json:"topSources"`
}
