package notifications

import (
	"fmt"
	"strings"
)

// Template holds the per-channel text a notification type is rendered with.
// Fields may reference {{key}} placeholders.
type Template struct {
	ID      string `json:"id"`
	Type    Type   `json:"type"`
	Subject string `json:"subject,omitempty"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	HTML    string `json:"html,omitempty"`

	// Required variables must resolve to a non-empty value.
	Required []string `json:"required,omitempty"`
	// Defaults fill variables the notification does not provide.
	Defaults map[string]string `json:"defaults,omitempty"`
}

// Vars builds the variable set used to render n: defaults first, then the
// notification's own template data, then the built-in fields.
func (t Template) Vars(n Notification) map[string]string {
	vars := make(map[string]string, len(t.Defaults)+len(n.TemplateData)+8)
	for k, v := range t.Defaults {
		vars[k] = v
	}
	for k, v := range n.TemplateData {
		vars[k] = v
	}
	vars["id"] = n.ID
	vars["user_id"] = n.UserID
	vars["sender_id"] = n.SenderID
	vars["type"] = string(n.Type)
	vars["action_url"] = n.ActionURL
	vars["group_key"] = n.GroupKey
	// title and message are themselves templates over the same data.
	vars["title"] = Render(n.Title, vars)
	vars["message"] = Render(n.Message, vars)
	return vars
}

// Check returns an error when a required variable is missing or empty.
func (t Template) Check(vars map[string]string) error {
	for _, key := range t.Required {
		if vars[key] == "" {
			return fmt.Errorf("%w: %q", ErrMissingVariable, key)
		}
	}
	return nil
}

// Render substitutes every {{key}} span in text in a single left-to-right
// scan. Unknown keys render as the empty string. An unterminated "{{" is
// copied through verbatim.
func Render(text string, vars map[string]string) string {
	if !strings.Contains(text, "{{") {
		return text
	}

	var sb strings.Builder
	sb.Grow(len(text))

	for i := 0; i < len(text); {
		start := strings.Index(text[i:], "{{")
		if start < 0 {
			sb.WriteString(text[i:])
			break
		}
		start += i
		end := strings.Index(text[start+2:], "}}")
		if end < 0 {
			sb.WriteString(text[i:])
			break
		}
		end += start + 2

		sb.WriteString(text[i:start])
		key := strings.TrimSpace(text[start+2 : end])
		sb.WriteString(vars[key])
		i = end + 2
	}

	return sb.String()
}
