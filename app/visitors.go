package app

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"example/portfolio-api/app/models"

	"github.com/gin-gonic/gin"
)

const (
	maxNameLen      = 50
	signatureWindow = 24 * time.Hour
	defaultPageSize = 20
	maxPageSize     = 100
)

// validateSignature trims the request in place and returns the first problem found.
func validateSignature(req *models.SignVisitorRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Relation = strings.ToLower(strings.TrimSpace(req.Relation))

	if n := utf8.RuneCountInString(req.Name); n == 0 || n > maxNameLen {
		return errors.New("name must be between 1 and 50 characters")
	}
	if !validRelation(req.Relation) {
		return errors.New("relation is not one of the allowed values")
	}
	if req.Email != "" && !validEmail(req.Email) {
		return errors.New("email is not a valid address")
	}
	return nil
}

func validRelation(r string) bool {
	for _, known := range models.Relations {
		if string(known) == r {
			return true
		}
	}
	return false
}

// validEmail accepts a bare address only, not "Name <addr>".
func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s && strings.Contains(s[strings.LastIndex(s, "@"):], ".")
}

// pagination reads ?page=&limit= with 1-based pages.
func pagination(c *gin.Context) (limit, offset int) {
	limit, page := defaultPageSize, 1
	if v, err := parsePositiveInt(c.Query("limit")); err == nil && v > 0 {
		limit = min(v, maxPageSize)
	}
	if v, err := parsePositiveInt(c.Query("page")); err == nil && v > 0 {
		page = v
	}
	return limit, (page - 1) * limit
}

// SignGuestbook records a signature, one per IP per day, and queues a
// thank-you mail when an email was given.
func (s *Server) SignGuestbook(c *gin.Context) {
	var req models.SignVisitorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid request body")
		return
	}
	if err := validateSignature(&req); err != nil {
		s.badRequest(c, err.Error())
		return
	}
	if db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "guestbook unavailable"})
		return
	}

	ctx := c.Request.Context()
	ip := c.ClientIP()
	recent, err := signedSince(ctx, ip, s.now().Add(-signatureWindow))
	if err != nil {
		s.log.Error().Err(err).Msg("check recent signature")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to sign guestbook"})
		return
	}
	if recent {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "you have already signed the guestbook today"})
		return
	}

	v := models.Visitor{
		Name:      req.Name,
		Relation:  models.Relation(req.Relation),
		Email:     req.Email,
		IPAddress: ip,
		UserAgent: c.Request.UserAgent(),
	}
	if err := insertVisitor(ctx, &v); err != nil {
		s.log.Error().Err(err).Msg("insert visitor")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to sign guestbook"})
		return
	}
	s.log.Info().Int64("visitor", v.ID).Str("relation", req.Relation).Msg("guestbook signed")

	if v.Email != "" {
		msg := models.NotificationMessage{Kind: models.NotifyThankYou, Name: v.Name, Email: v.Email, VisitorID: v.ID}
		if err := s.queue.Enqueue(ctx, msg); err != nil {
			// the signature stands without the mail
			s.log.Error().Err(err).Int64("visitor", v.ID).Msg("enqueue thank-you")
		} else if err := markEmailSent(ctx, v.ID); err != nil {
			s.log.Warn().Err(err).Int64("visitor", v.ID).Msg("mark email sent")
		}
	}

	c.JSON(http.StatusCreated, models.PublicVisitor{Name: v.Name, Relation: v.Relation, CreatedAt: v.CreatedAt})
}

// ListGuestbook is the public, email-free listing.
func (s *Server) ListGuestbook(c *gin.Context) {
	if db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "guestbook unavailable"})
		return
	}
	limit, offset := pagination(c)
	visitors, total, err := listPublicVisitors(c.Request.Context(), limit, offset)
	if err != nil {
		s.log.Error().Err(err).Msg("list visitors")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load guestbook"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"visitors": visitors,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

func (s *Server) GuestbookStats(c *gin.Context) {
	if db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "guestbook unavailable"})
		return
	}
	stats, err := visitorStats(c.Request.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("visitor stats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// AdminVisitors lists signatures with emails; ?relation=a,b filters.
func (s *Server) AdminVisitors(c *gin.Context) {
	var relations []string
	if raw := c.Query("relation"); raw != "" {
		for _, r := range strings.Split(raw, ",") {
			r = strings.ToLower(strings.TrimSpace(r))
			if !validRelation(r) {
				s.badRequest(c, "unknown relation "+r)
				return
			}
			relations = append(relations, r)
		}
	}
	if db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "guestbook unavailable"})
		return
	}
	limit, offset := pagination(c)
	visitors, err := listVisitorsAdmin(c.Request.Context(), relations, limit, offset)
	if err != nil {
		s.log.Error().Err(err).Msg("admin list visitors")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load visitors"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"visitors": visitors, "limit": limit, "offset": offset})
}
