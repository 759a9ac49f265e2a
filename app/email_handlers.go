package app

import (
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"example/portfolio-api/app/models"

	"github.com/gin-gonic/gin"
)

const (
	maxContactNameLen = 100
	minMessageLen     = 10
	maxMessageLen     = 1000
)

func validateContact(req *models.ContactRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Message = strings.TrimSpace(req.Message)

	if n := utf8.RuneCountInString(req.Name); n == 0 || n > maxContactNameLen {
		return errors.New("name must be between 1 and 100 characters")
	}
	if !validEmail(req.Email) {
		return errors.New("a valid email is required")
	}
	if n := utf8.RuneCountInString(req.Message); n < minMessageLen || n > maxMessageLen {
		return errors.New("message must be between 10 and 1000 characters")
	}
	return nil
}

// Contact queues the owner notification and the sender's auto-reply as two
// messages, so a failed auto-reply never resends the owner's copy.
func (s *Server) Contact(c *gin.Context) {
	var req models.ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid request body")
		return
	}
	if err := validateContact(&req); err != nil {
		s.badRequest(c, err.Error())
		return
	}

	for _, kind := range []models.NotificationKind{models.NotifyContactOwner, models.NotifyContactReply} {
		msg := models.NotificationMessage{
			Kind:    kind,
			Name:    req.Name,
			Email:   req.Email,
			Message: req.Message,
		}
		if err := s.queue.Enqueue(c.Request.Context(), msg); err != nil {
			s.log.Error().Err(err).Str("kind", string(kind)).Msg("enqueue contact")
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to send message"})
			return
		}
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}
