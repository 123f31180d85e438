package events

import (
	"fmt"
	"strings"
)

// MessageTemplateEngine provides dynamic message generation for events.
type MessageTemplateEngine struct {
	templates map[EventReason]string
}

// NewMessageTemplateEngine creates a new message template engine with default templates.
func NewMessageTemplateEngine() *MessageTemplateEngine {
	engine := &MessageTemplateEngine{
		templates: make(map[EventReason]string),
	}
	engine.loadDefaultTemplates()
	return engine
}

// loadDefaultTemplates initializes the default message templates for all event reasons.
func (e *MessageTemplateEngine) loadDefaultTemplates() {
	// Playbook templates
	e.templates[ReasonPlaybookResolved] = "Playbook {{.Name}} resolved successfully"
	e.templates[ReasonPlaybookResolveFailed] = "Playbook {{.Name}} resolution failed{{if .Error}}: {{.Error}}{{end}}"
	e.templates[ReasonPlaybookRunning] = "Playbook {{.Name}} is running, all actors reached Running"
	e.templates[ReasonPlaybookDeleted] = "Playbook {{.Name}} deleted, namespace {{.Namespace}} torn down"
	e.templates[ReasonNamespaceCreated] = "Namespace {{.Namespace}} created for playbook {{.Name}}"

	// Actor templates
	e.templates[ReasonActorDiscovered] = "Actor {{.Name}} discovered from manifest of playbook {{.Playbook}}"
	e.templates[ReasonBuildStarted] = "Build started for actor {{.Name}} at revision {{.Revision}}"
	e.templates[ReasonBuildSucceeded] = "Build succeeded for actor {{.Name}}{{if .Duration}} in {{.Duration}}{{end}}"
	e.templates[ReasonBuildFailed] = "Build failed for actor {{.Name}}{{if .Error}}: {{.Error}}{{end}}"
	e.templates[ReasonPushStarted] = "Push started for actor {{.Name}} at revision {{.Revision}}"
	e.templates[ReasonPushSucceeded] = "Push succeeded for actor {{.Name}}{{if .Duration}} in {{.Duration}}{{end}}"
	e.templates[ReasonPushFailed] = "Push failed for actor {{.Name}}{{if .Error}}: {{.Error}}{{end}}"
	e.templates[ReasonDeployStarted] = "Deploy started for actor {{.Name}} at revision {{.Revision}}"
	e.templates[ReasonDeployFailed] = "Deploy failed for actor {{.Name}}{{if .Error}}: {{.Error}}{{end}}"
	e.templates[ReasonActorRunning] = "Actor {{.Name}} is running"
	e.templates[ReasonActorFailed] = "Actor {{.Name}} failed at stage {{.Stage}}{{if .Error}}: {{.Error}}{{end}}"
	e.templates[ReasonRetryScheduled] = "Retry scheduled for actor {{.Name}}{{if .Attempt}} (attempt {{.Attempt}}){{end}}"
	e.templates[ReasonDependencyHeld] = "Actor {{.Name}} held at Pending, dependency has not reached Running{{if .Error}}: {{.Error}}{{end}}"
	e.templates[ReasonSourceChanged] = "Source changed for actor {{.Name}}, pipeline restarted at revision {{.Revision}}"
}

// Render generates a message for the given event reason and data.
func (e *MessageTemplateEngine) Render(reason EventReason, data EventData) string {
	template, exists := e.templates[reason]
	if !exists {
		// Fallback for unknown event reasons
		return fmt.Sprintf("Event: %s for %s/%s", string(reason), data.Namespace, data.Name)
	}

	return e.renderTemplate(template, data)
}

// SetTemplate allows customizing the message template for a specific event reason.
func (e *MessageTemplateEngine) SetTemplate(reason EventReason, template string) {
	e.templates[reason] = template
}

// GetTemplate returns the template for a specific event reason.
func (e *MessageTemplateEngine) GetTemplate(reason EventReason) (string, bool) {
	template, exists := e.templates[reason]
	return template, exists
}

// renderTemplate performs simple template rendering with EventData.
// This is a simplified template system that supports basic variable substitution.
func (e *MessageTemplateEngine) renderTemplate(template string, data EventData) string {
	result := template

	// Replace basic variables
	result = strings.ReplaceAll(result, "{{.Name}}", data.Name)
	result = strings.ReplaceAll(result, "{{.Namespace}}", data.Namespace)
	result = strings.ReplaceAll(result, "{{.Playbook}}", data.Playbook)
	result = strings.ReplaceAll(result, "{{.Stage}}", data.Stage)
	result = strings.ReplaceAll(result, "{{.Revision}}", data.Revision)
	result = strings.ReplaceAll(result, "{{.Error}}", data.Error)

	// Handle duration formatting
	if strings.Contains(result, "{{.Duration}}") {
		if data.Duration > 0 {
			result = strings.ReplaceAll(result, "{{.Duration}}", data.Duration.String())
		} else {
			result = strings.ReplaceAll(result, "{{.Duration}}", "")
		}
	}

	// Handle attempt count
	if strings.Contains(result, "{{.Attempt}}") {
		if data.Attempt > 0 {
			result = strings.ReplaceAll(result, "{{.Attempt}}", fmt.Sprintf("%d", data.Attempt))
		} else {
			result = strings.ReplaceAll(result, "{{.Attempt}}", "")
		}
	}

	// Handle conditional blocks for optional fields
	result = e.renderConditionals(result, data)

	return result
}

// renderConditionals handles simple conditional rendering in templates.
// Supports: {{if .FieldName}}content{{end}}
func (e *MessageTemplateEngine) renderConditionals(template string, data EventData) string {
	result := template

	result = e.renderConditional(result, "{{if .Error}}", "{{end}}", data.Error != "")
	result = e.renderConditional(result, "{{if .Duration}}", "{{end}}", data.Duration > 0)
	result = e.renderConditional(result, "{{if .Attempt}}", "{{end}}", data.Attempt > 0)

	return result
}

// renderConditional handles a single conditional block.
func (e *MessageTemplateEngine) renderConditional(template, startMarker, endMarker string, condition bool) string {
	startIndex := strings.Index(template, startMarker)
	if startIndex == -1 {
		return template
	}

	endIndex := strings.Index(template[startIndex:], endMarker)
	if endIndex == -1 {
		return template
	}

	endIndex += startIndex // Convert to absolute index

	if condition {
		// Keep the content between markers, remove the markers
		before := template[:startIndex]
		content := template[startIndex+len(startMarker) : endIndex]
		after := template[endIndex+len(endMarker):]
		return before + content + after
	} else {
		// Remove the entire conditional block
		before := template[:startIndex]
		after := template[endIndex+len(endMarker):]
		return before + after
	}
}
