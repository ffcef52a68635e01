package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleChatbotStatus(c *gin.Context) {
	sessions := s.deps.Chatbot.Sessions()
	c.JSON(http.StatusOK, gin.H{
		"enabled":      s.deps.Chatbot.Enabled(),
		"active":       sessions.Len(),
		"idle_timeout": sessions.IdleTimeout().String(),
	})
}

func (s *Server) handleChatbotToggle(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.deps.Chatbot.SetEnabled(enabled)
		c.JSON(http.StatusOK, gin.H{"enabled": enabled})
	}
}

func (s *Server) handleChatbotResetAll(c *gin.Context) {
	n := s.deps.Chatbot.Sessions().ResetAll()
	s.logger.Info("conversations reset", "count", n)
	c.JSON(http.StatusOK, gin.H{"reset": n})
}

// handleChatbotReset drops one conversation. The id is the channel-qualified
// key, e.g. "whatsapp:966500000000".
func (s *Server) handleChatbotReset(c *gin.Context) {
	key := c.Param("id")
	if !s.deps.Chatbot.Sessions().Reset(key) {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}
	s.logger.Info("conversation reset", "key", key)
	c.JSON(http.StatusOK, gin.H{"reset": 1, "id": key})
}

func (s *Server) handleChatbotConversations(c *gin.Context) {
	convs := s.deps.Chatbot.Sessions().List()
	c.JSON(http.StatusOK, gin.H{"conversations": convs, "count": len(convs)})
}
