package mail

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nslnv/leaddesk/pkg/leads"
)

func strPtr(s string) *string { return &s }

func sampleLead() leads.Lead {
	return leads.Lead{
		ID:          42,
		Name:        "Anna <Admin>",
		Email:       "anna@example.com",
		Phone:       strPtr("+7 999 123-45-67"),
		WorkType:    "Coursework",
		Description: "Statistics project",
		Source:      strPtr("landing"),
		Status:      leads.StatusNew,
		CreatedAt:   time.Date(2025, 5, 10, 9, 30, 0, 0, time.UTC),
	}
}

func TestRenderNewLead(t *testing.T) {
	p := NewLeadParams(sampleLead(), "https://crm.example.com/admin/", "Leaddesk")
	body, err := RenderNewLead(p)
	require.NoError(t, err)

	assert.Contains(t, body, "New lead #42")
	assert.Contains(t, body, "10.05.2025 09:30 UTC")
	assert.Contains(t, body, "via landing")
	assert.Contains(t, body, "+7 999 123-45-67")
	assert.Contains(t, body, "Deadline</strong></td><td>not specified")
	assert.Contains(t, body, `href="https://crm.example.com/admin/leads/42"`)
	assert.Contains(t, body, "Anna &lt;Admin&gt;")
	assert.NotContains(t, body, "<Admin>")
}

func TestRenderNewLead_Defaults(t *testing.T) {
	l := sampleLead()
	l.Phone = nil
	l.Source = nil
	body, err := RenderNewLead(NewLeadParams(l, "", ""))
	require.NoError(t, err)

	assert.Contains(t, body, "via website")
	assert.Contains(t, body, "not provided")
	assert.NotContains(t, body, "Open in admin panel")
}

func TestNewLeadSubject(t *testing.T) {
	p := NewLeadParams(sampleLead(), "", "")
	assert.Equal(t, "New lead #42: Coursework from Anna <Admin>", NewLeadSubject(p))
}
