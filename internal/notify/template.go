package notify

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/Meshal1212222/ticket-ticket/pkg/protocol"
)

// Templates.
const (
	TemplateFull    = "full"
	TemplateCompact = "compact"
)

// Formats.
const (
	FormatHTML     = "html"     // Telegram
	FormatWhatsApp = "whatsapp" // WhatsApp markup
	FormatMrkdwn   = "mrkdwn"   // Slack
	FormatPlain    = "plain"
)

const notSet = "غير محدد"

// Renderer turns a ticket into a notification message.
type Renderer struct {
	Template string
	Format   string
	Location *time.Location // timestamps are shown in this zone, default UTC
}

// Render formats t with the renderer's template and markup.
func (r Renderer) Render(t *protocol.Ticket) string {
	m := markup(r.Format)
	if r.Template == TemplateCompact {
		return r.compact(t, m)
	}
	return r.full(t, m)
}

func (r Renderer) full(t *protocol.Ticket, m marker) string {
	var b strings.Builder
	line := func(icon, label, value string) {
		fmt.Fprintf(&b, "%s %s %s\n", icon, m.bold(label+":"), m.esc(orNotSet(value)))
	}

	fmt.Fprintf(&b, "🎫 %s\n\n", m.bold("بلاغ جديد"))
	fmt.Fprintf(&b, "📋 %s %s\n", m.bold("رقم التذكرة:"), m.code(t.ID))
	line("👤", "الاسم", t.Name)
	line("📧", "البريد", t.Email)
	line("📱", "الجوال", t.Phone)
	line("📂", "نوع البلاغ", t.Category)
	line("⚡", "الأولوية", t.Priority)
	line("🔗", "المصدر", t.Source)

	if t.Subject != "" {
		fmt.Fprintf(&b, "\n📝 %s\n%s\n", m.bold("العنوان:"), m.esc(t.Subject))
	}
	if t.Description != "" {
		fmt.Fprintf(&b, "\n📄 %s\n%s\n", m.bold("التفاصيل:"), m.esc(t.Description))
	}
	if s := t.SummaryText(); s != "" {
		fmt.Fprintf(&b, "\n🤖 %s\n%s\n", m.bold("ملخص:"), m.esc(s))
	}

	fmt.Fprintf(&b, "\n🕐 %s %s\n", m.bold("التاريخ:"), r.timestamp(t.CreatedAt))
	b.WriteString("━━━━━━━━━━━━━━━━━━━━━")
	return b.String()
}

func (r Renderer) compact(t *protocol.Ticket, m marker) string {
	parts := []string{m.code(t.ID), m.esc(t.Name)}
	if t.Category != "" {
		parts = append(parts, m.esc(t.Category))
	}
	if t.Subject != "" {
		parts = append(parts, m.esc(t.Subject))
	}
	out := "🎫 " + strings.Join(parts, " | ")
	if s := t.SummaryText(); s != "" {
		out += "\n🤖 " + m.esc(s)
	}
	return out
}

func (r Renderer) timestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02 15:04")
}

func orNotSet(s string) string {
	if strings.TrimSpace(s) == "" {
		return notSet
	}
	return s
}

type marker struct {
	bold func(string) string
	code func(string) string
	esc  func(string) string
}

func markup(format string) marker {
	identity := func(s string) string { return s }
	switch format {
	case FormatHTML:
		return marker{
			bold: func(s string) string { return "<b>" + html.EscapeString(s) + "</b>" },
			code: func(s string) string { return "<code>" + html.EscapeString(s) + "</code>" },
			esc:  html.EscapeString,
		}
	case FormatWhatsApp:
		return marker{
			bold: func(s string) string { return "*" + s + "*" },
			code: func(s string) string { return "```" + s + "```" },
			esc:  identity,
		}
	case FormatMrkdwn:
		return marker{
			bold: func(s string) string { return "*" + s + "*" },
			code: func(s string) string { return "`" + s + "`" },
			esc:  escapeMrkdwn,
		}
	default:
		return marker{bold: identity, code: identity, esc: identity}
	}
}

// escapeMrkdwn escapes the three control characters Slack requires.
func escapeMrkdwn(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
