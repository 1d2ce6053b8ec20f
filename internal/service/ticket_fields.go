package service

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// historyTimeLayout is the fixed human-readable format history entries use
// for start_time and deadline values.
const historyTimeLayout = "2006-01-02 15:04"

// renderContext resolves reference data to display labels while diffing.
// Lookups that failed upstream degrade to raw identifiers so a missing
// label never blocks an audit write.
type renderContext struct {
	priorityLabels map[string]string
	userLabels     map[string]string
}

func (rc renderContext) priorityLabel(id string) string {
	if label, ok := rc.priorityLabels[id]; ok {
		return label
	}
	return id
}

func (rc renderContext) userLabel(id *string) string {
	if id == nil {
		return ""
	}
	if label, ok := rc.userLabels[*id]; ok {
		return label
	}
	return *id
}

func renderHistoryTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(historyTimeLayout)
}

// trackedField renders one audited ticket field. The field set is an
// explicit enumeration so the diff is statically verifiable; anything not
// listed here never appears in history.
type trackedField struct {
	name   string
	render func(t *domain.Ticket, rc renderContext) string
}

var trackedFields = []trackedField{
	{"title", func(t *domain.Ticket, _ renderContext) string { return t.Title }},
	{"description", func(t *domain.Ticket, _ renderContext) string { return t.Description }},
	{"category", func(t *domain.Ticket, _ renderContext) string { return t.Category }},
	{"priority", func(t *domain.Ticket, rc renderContext) string { return rc.priorityLabel(t.PriorityID) }},
	{"status", func(t *domain.Ticket, _ renderContext) string { return string(t.Status) }},
	{"assignee", func(t *domain.Ticket, rc renderContext) string { return rc.userLabel(t.AssigneeID) }},
	{"start_time", func(t *domain.Ticket, _ renderContext) string { return renderHistoryTime(t.StartTime) }},
	{"deadline", func(t *domain.Ticket, _ renderContext) string { return renderHistoryTime(t.Deadline) }},
}

// diffTracked compares the tracked fields of two ticket states and returns
// one FieldChange per field whose rendered value differs.
func diffTracked(before, after *domain.Ticket, rc renderContext) map[string]domain.FieldChange {
	changes := make(map[string]domain.FieldChange)
	for _, field := range trackedFields {
		oldValue := field.render(before, rc)
		newValue := field.render(after, rc)
		if oldValue != newValue {
			changes[field.name] = domain.FieldChange{Old: oldValue, New: newValue}
		}
	}
	return changes
}
