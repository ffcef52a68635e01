// Package api serves the ticket REST API, the Green-API webhook and the
// chatbot controls over gin.
package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Meshal1212222/ticket-ticket/internal/chatbot"
	"github.com/Meshal1212222/ticket-ticket/internal/intake"
	"github.com/Meshal1212222/ticket-ticket/internal/logbuf"
	"github.com/Meshal1212222/ticket-ticket/internal/scheduler"
	"github.com/Meshal1212222/ticket-ticket/internal/ticket"
	"github.com/Meshal1212222/ticket-ticket/pkg/protocol"
)

const requestIDHeader = "X-Request-ID"

// Creator is the ticket creation pathway. *intake.Service satisfies it.
type Creator interface {
	Create(ctx context.Context, sub intake.Submission) (*protocol.Ticket, error)
}

// TicketStore is the read and update side of ticket.Store.
type TicketStore interface {
	Get(ctx context.Context, id string) (*protocol.Ticket, error)
	List(ctx context.Context, filter ticket.Filter) ([]*protocol.Ticket, error)
	Update(ctx context.Context, id string, patch ticket.Patch) (*protocol.Ticket, error)
	Stats(ctx context.Context, since time.Time) (*ticket.Stats, error)
}

// Chatbot is satisfied by *chatbot.Machine.
type Chatbot interface {
	Enabled() bool
	SetEnabled(bool)
	Sessions() *chatbot.Sessions
}

// Notifiers reports the configured notification channels. *notify.Dispatcher satisfies it.
type Notifiers interface {
	Names() []string
	Has(name string) bool
}

// LogQuerier abstracts log entry querying to avoid coupling to logbuf directly.
type LogQuerier interface {
	Query(q logbuf.Query) []logbuf.Entry
}

// Jobs exposes the daemon's periodic jobs. *scheduler.Scheduler satisfies it.
type Jobs interface {
	Jobs() []scheduler.JobInfo
	RunNow(name string) error
}

// Deps are the components the server exposes. Only Intake and Store are required.
type Deps struct {
	Intake    Creator
	Store     TicketStore
	Chatbot   Chatbot
	Notifiers Notifiers
	Logs      LogQuerier
	Jobs      Jobs
	Webhook   http.Handler // Green-API webhook, nil when WhatsApp is off
}

// Config holds API server configuration.
type Config struct {
	Host      string
	Port      int
	APIKey    string // guards POST /api/ticket; open when empty
	AdminKey  string // guards admin routes; they answer 503 when empty
	StoreName string
	Location  *time.Location // day boundary for stats
}

// Server is the ticket HTTP server.
type Server struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
	srv    *http.Server
}

// NewServer creates a new API server.
func NewServer(deps Deps, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	s := &Server{
		deps:   deps,
		cfg:    cfg,
		logger: logger.With("component", "api"),
		now:    time.Now,
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestID(), s.requestLogger(), cors())

	r.GET("/api/health", s.handleHealth)
	r.POST("/api/ticket", s.requireAPIKey(), s.handleSubmit)
	if deps.Webhook != nil {
		r.POST("/webhook/greenapi", gin.WrapH(deps.Webhook))
	}

	admin := r.Group("/api", s.requireAdmin())
	{
		admin.GET("/tickets", s.handleListTickets)
		admin.GET("/tickets/:id", s.handleGetTicket)
		admin.PATCH("/tickets/:id", s.handleUpdateTicket)
		admin.GET("/stats", s.handleStats)
		admin.GET("/export", s.handleExport)
		admin.GET("/logs", s.handleGetLogs)
		admin.GET("/jobs", s.handleListJobs)
		admin.POST("/jobs/:name/run", s.handleRunJob)
	}

	bot := r.Group("/api/chatbot", s.requireAdmin(), s.requireChatbot())
	{
		bot.GET("/status", s.handleChatbotStatus)
		bot.POST("/enable", s.handleChatbotToggle(true))
		bot.POST("/disable", s.handleChatbotToggle(false))
		bot.POST("/reset", s.handleChatbotResetAll)
		bot.POST("/reset/:id", s.handleChatbotReset)
		bot.GET("/conversations", s.handleChatbotConversations)
	}

	s.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start begins listening. Blocks until context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutCtx)
	}()

	s.logger.Info("api server starting", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// --- Middleware ---

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelDebug
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		s.logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", time.Since(start),
			"request_id", c.GetString("request_id"),
		)
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key, X-Admin-Key, X-Request-ID")
		h.Set("Access-Control-Expose-Headers", requestIDHeader)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) requireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.APIKey == "" {
			c.Next()
			return
		}
		key := c.GetHeader("X-API-Key")
		if key == "" {
			key = bearerToken(c.Request)
		}
		if !keyEqual(key, s.cfg.APIKey) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "unauthorized"})
			return
		}
		c.Next()
	}
}

func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.AdminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "admin api disabled"})
			return
		}
		key := c.GetHeader("X-Admin-Key")
		if key == "" {
			key = bearerToken(c.Request)
		}
		if !keyEqual(key, s.cfg.AdminKey) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func (s *Server) requireChatbot() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.deps.Chatbot == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "chatbot not configured"})
			return
		}
		c.Next()
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(auth, "Bearer ")
}

func keyEqual(got, want string) bool {
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// --- Health ---

func (s *Server) handleHealth(c *gin.Context) {
	notifiers := []string{}
	telegram := false
	if s.deps.Notifiers != nil {
		notifiers = append(notifiers, s.deps.Notifiers.Names()...)
		telegram = s.deps.Notifiers.Has("telegram")
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"notifiers": notifiers,
		"telegram":  telegram,
		"chatbot":   s.deps.Chatbot != nil && s.deps.Chatbot.Enabled(),
		"store":     s.cfg.StoreName,
	})
}
