package ticket

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Meshal1212222/ticket-ticket/pkg/protocol"
)

// Patch is a partial update. Known keys set the matching ticket field,
// unknown keys are merged into Ticket.Extra. A nil value clears the key.
type Patch map[string]any

// Apply merges the patch into t. The ID and creation time never change.
func (p Patch) Apply(t *protocol.Ticket) {
	for key, v := range p {
		switch key {
		case "id", "created_at", "updated_at":
			continue
		case "name":
			t.Name = str(v)
		case "email":
			t.Email = str(v)
		case "phone":
			t.Phone = str(v)
		case "category":
			t.Category = str(v)
		case "priority":
			t.Priority = str(v)
		case "subject":
			t.Subject = str(v)
		case "description":
			t.Description = str(v)
		case "status":
			t.Status = protocol.TicketStatus(str(v))
		case "source":
			t.Source = str(v)
		case "ai_summary", "summary":
			if v == nil {
				t.Summary = nil
				continue
			}
			s := str(v)
			t.Summary = &s
		case "ai_processed":
			t.AIProcessed = truthy(v)
		default:
			if v == nil {
				delete(t.Extra, key)
				continue
			}
			if t.Extra == nil {
				t.Extra = make(map[string]any)
			}
			t.Extra[key] = v
		}
	}
}

func str(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(b, "true") || b == "1"
	case float64:
		return b != 0
	default:
		return false
	}
}
