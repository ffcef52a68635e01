package api

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"

	"github.com/Meshal1212222/ticket-ticket/internal/intake"
	"github.com/Meshal1212222/ticket-ticket/internal/logbuf"
	"github.com/Meshal1212222/ticket-ticket/internal/ticket"
	"github.com/Meshal1212222/ticket-ticket/pkg/protocol"
)

// Submit responses shown to the person filling the form.
const (
	msgSubmitted     = "تم إرسال البلاغ بنجاح"
	msgMissingFields = "الرجاء تعبئة جميع الحقول المطلوبة"
	msgSubmitFailed  = "حدث خطأ أثناء إرسال البلاغ"
	msgNoNotifiers   = "لم يتم إعداد قنوات الإشعار"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
	defaultLogLimit  = 200
)

func (s *Server) handleSubmit(c *gin.Context) {
	var sub intake.Submission
	if err := c.ShouldBindJSON(&sub); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": msgMissingFields})
		return
	}
	sub.Source = protocol.SourceWeb

	t, err := s.deps.Intake.Create(c.Request.Context(), sub)
	var verr *intake.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": msgMissingFields, "fields": verr.Fields})
		return
	case err != nil:
		s.logger.Error("submit ticket failed", "error", err, "request_id", c.GetString("request_id"))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": msgSubmitFailed})
		return
	}

	resp := gin.H{
		"success":  true,
		"ticketId": t.ID,
		"message":  msgSubmitted,
		"ticket":   t,
	}
	if s.deps.Notifiers == nil || len(s.deps.Notifiers.Names()) == 0 {
		resp["warning"] = msgNoNotifiers
	}
	c.JSON(http.StatusOK, resp)
}

// filterFromQuery reads the list filters shared by /api/tickets and /api/export.
func filterFromQuery(c *gin.Context) ticket.Filter {
	f := ticket.Filter{
		Status:   c.Query("status"),
		Category: c.Query("category"),
		Priority: c.Query("priority"),
		Source:   c.Query("source"),
		Query:    strings.TrimSpace(c.Query("q")),
	}
	if v := c.Query("since"); v != "" {
		f.Since = parseTime(v)
	}
	return f
}

func (s *Server) handleListTickets(c *gin.Context) {
	filter := filterFromQuery(c)
	filter.Limit = defaultListLimit
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Limit = min(n, maxListLimit)
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filter.Offset = n
		}
	}

	tickets, err := s.deps.Store.List(c.Request.Context(), filter)
	if err != nil {
		s.internalError(c, "list tickets", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tickets": tickets,
		"count":   len(tickets),
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

func (s *Server) handleGetTicket(c *gin.Context) {
	t, err := s.deps.Store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.storeError(c, "get ticket", err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) handleUpdateTicket(c *gin.Context) {
	var patch ticket.Patch
	if err := c.ShouldBindJSON(&patch); err != nil || len(patch) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be a non-empty JSON object"})
		return
	}
	t, err := s.deps.Store.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		s.storeError(c, "update ticket", err)
		return
	}
	s.logger.Info("ticket updated", "ticket_id", t.ID, "status", t.Status)
	c.JSON(http.StatusOK, t)
}

func (s *Server) handleStats(c *gin.Context) {
	since := ticket.StartOfDay(s.now(), s.cfg.Location)
	st, err := s.deps.Store.Stats(c.Request.Context(), since)
	if err != nil {
		s.internalError(c, "stats", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

var exportColumns = []string{
	"id", "created_at", "status", "priority", "source", "category",
	"name", "email", "phone", "subject", "description", "ai_summary",
}

func (s *Server) handleExport(c *gin.Context) {
	format := c.DefaultQuery("format", "json")
	if format != "json" && format != "csv" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be csv or json"})
		return
	}

	tickets, err := s.deps.Store.List(c.Request.Context(), filterFromQuery(c))
	if err != nil {
		s.internalError(c, "export", err)
		return
	}

	name := "tickets-" + s.now().In(s.cfg.Location).Format("20060102") + "." + format
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Header("Vary", "Accept-Encoding")
	if format == "csv" {
		c.Header("Content-Type", "text/csv; charset=utf-8")
	} else {
		c.Header("Content-Type", "application/json; charset=utf-8")
	}

	var w io.Writer = c.Writer
	if strings.Contains(c.GetHeader("Accept-Encoding"), "gzip") {
		c.Header("Content-Encoding", "gzip")
		gz := gzip.NewWriter(c.Writer)
		defer gz.Close()
		w = gz
	}
	c.Status(http.StatusOK)

	if format == "csv" {
		err = writeCSV(w, tickets, s.cfg.Location)
	} else {
		err = json.NewEncoder(w).Encode(tickets)
	}
	if err != nil {
		s.logger.Warn("export write failed", "format", format, "error", err)
	}
}

func writeCSV(w io.Writer, tickets []*protocol.Ticket, loc *time.Location) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportColumns); err != nil {
		return err
	}
	for _, t := range tickets {
		err := cw.Write([]string{
			t.ID,
			t.CreatedAt.In(loc).Format(time.RFC3339),
			string(t.Status),
			t.Priority,
			t.Source,
			t.Category,
			t.Name,
			t.Email,
			t.Phone,
			t.Subject,
			t.Description,
			t.SummaryText(),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (s *Server) handleGetLogs(c *gin.Context) {
	if s.deps.Logs == nil {
		c.JSON(http.StatusOK, []logbuf.Entry{})
		return
	}

	q := logbuf.Query{
		Limit:     defaultLogLimit,
		MinLevel:  slog.LevelDebug,
		Component: c.Query("component"),
		Ticket:    c.Query("ticket"),
		Contains:  c.Query("q"),
	}
	if v := c.Query("after"); v != "" {
		if seq, err := strconv.ParseUint(v, 10, 64); err == nil {
			q.After = seq
		}
	}
	if l := c.Query("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			q.Limit = n
		}
	}
	if lvl := c.Query("level"); lvl != "" {
		q.MinLevel = logbuf.ParseLevel(lvl)
	}
	if v := c.Query("since"); v != "" {
		q.Since = parseTime(v)
	}

	entries := s.deps.Logs.Query(q)
	if entries == nil {
		entries = []logbuf.Entry{}
	}
	c.JSON(http.StatusOK, entries)
}

// parseTime accepts RFC 3339 or unix milliseconds. Anything else yields the zero time.
func parseTime(v string) time.Time {
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.UnixMilli(ms)
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t
	}
	return time.Time{}
}

func (s *Server) storeError(c *gin.Context, op string, err error) {
	if errors.Is(err, ticket.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
		return
	}
	s.internalError(c, op, err)
}

func (s *Server) internalError(c *gin.Context, op string, err error) {
	s.logger.Error(op+" failed", "error", err, "request_id", c.GetString("request_id"))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
