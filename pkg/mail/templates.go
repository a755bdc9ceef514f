package mail

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"time"

	"github.com/Masterminds/sprig/v3"

	"github.com/nslnv/leaddesk/pkg/leads"
)

// NewLeadMailParams feeds the new-lead notification template
type NewLeadMailParams struct {
	ID           int64
	Name         string
	Email        string
	Phone        string
	WorkType     string
	Deadline     string
	Budget       string
	Description  string
	Source       string
	CreatedAt    time.Time
	AdminURL     string
	BrandingName string
}

var (
	//go:embed templates/new_lead.html
	newLeadTemplateRaw string

	newLeadTemplate = template.Must(template.New("newLead").Funcs(sprig.FuncMap()).Parse(newLeadTemplateRaw))
)

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// NewLeadParams flattens a lead for the template
func NewLeadParams(l leads.Lead, adminURL, branding string) NewLeadMailParams {
	return NewLeadMailParams{
		ID:           l.ID,
		Name:         l.Name,
		Email:        l.Email,
		Phone:        str(l.Phone),
		WorkType:     l.WorkType,
		Deadline:     str(l.Deadline),
		Budget:       str(l.Budget),
		Description:  l.Description,
		Source:       str(l.Source),
		CreatedAt:    l.CreatedAt,
		AdminURL:     adminURL,
		BrandingName: branding,
	}
}

func RenderNewLead(p NewLeadMailParams) (string, error) {
	b := bytes.Buffer{}
	err := newLeadTemplate.Execute(&b, p)
	return b.String(), err
}

// NewLeadSubject is the subject line of the notification
func NewLeadSubject(p NewLeadMailParams) string {
	return fmt.Sprintf("New lead #%d: %s from %s", p.ID, p.WorkType, p.Name)
}
