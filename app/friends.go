package app

import (
	"errors"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"example/portfolio-api/app/models"
	"example/portfolio-api/auth"

	"github.com/gin-gonic/gin"
)

const (
	maxSearchLen  = 30
	searchResults = 10
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,30}$`)

func validUsername(s string) bool {
	return usernamePattern.MatchString(s)
}

// subject is the caller's verified token subject. The auth middleware runs
// first, so a miss means the route was wired without it.
func subject(c *gin.Context) (string, bool) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok || claims.Subject == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return "", false
	}
	return claims.Subject, true
}

// friendError maps store errors onto responses; op names the action in logs.
func (s *Server) friendError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, errNoDB):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "friends unavailable"})
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrRequestNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNoProfile), errors.Is(err, ErrUsernameTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ErrSelfRequest), errors.Is(err, ErrAlreadyFriends), errors.Is(err, ErrRequestExists):
		s.badRequest(c, err.Error())
	default:
		s.log.Error().Err(err).Str("op", op).Msg("friends")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
	}
}

func (s *Server) GetProfile(c *gin.Context) {
	sub, ok := subject(c)
	if !ok {
		return
	}
	p, err := s.friends.Profile(c.Request.Context(), sub)
	if errors.Is(err, ErrNoProfile) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		s.friendError(c, "profile", err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// SetProfile claims or renames the caller's username.
func (s *Server) SetProfile(c *gin.Context) {
	sub, ok := subject(c)
	if !ok {
		return
	}
	var req models.UsernameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid request body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if !validUsername(req.Username) {
		s.badRequest(c, "username must be 3 to 30 letters, digits, '_' or '-'")
		return
	}
	p, err := s.friends.SetUsername(c.Request.Context(), sub, req.Username)
	if err != nil {
		s.friendError(c, "set username", err)
		return
	}
	s.log.Info().Str("username", p.Username).Msg("profile saved")
	c.JSON(http.StatusOK, p)
}

func (s *Server) SendFriendRequest(c *gin.Context) {
	sub, ok := subject(c)
	if !ok {
		return
	}
	var req models.UsernameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid request body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		s.badRequest(c, "username is required")
		return
	}
	r, err := s.friends.SendRequest(c.Request.Context(), sub, req.Username)
	if err != nil {
		s.friendError(c, "send request", err)
		return
	}
	s.log.Info().Int64("request", r.ID).Str("from", r.From).Str("to", r.To).Msg("friend request sent")
	c.JSON(http.StatusCreated, r)
}

func bindDecision(c *gin.Context) (int64, bool) {
	var req models.FriendDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RequestID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request_id is required"})
		return 0, false
	}
	return req.RequestID, true
}

func (s *Server) AcceptFriendRequest(c *gin.Context) {
	sub, ok := subject(c)
	if !ok {
		return
	}
	id, ok := bindDecision(c)
	if !ok {
		return
	}
	f, err := s.friends.Accept(c.Request.Context(), sub, id)
	if err != nil {
		s.friendError(c, "accept request", err)
		return
	}
	c.JSON(http.StatusOK, f)
}

func (s *Server) RejectFriendRequest(c *gin.Context) {
	sub, ok := subject(c)
	if !ok {
		return
	}
	id, ok := bindDecision(c)
	if !ok {
		return
	}
	if err := s.friends.Reject(c.Request.Context(), sub, id); err != nil {
		s.friendError(c, "reject request", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "rejected"})
}

func (s *Server) ListFriendRequests(c *gin.Context) {
	sub, ok := subject(c)
	if !ok {
		return
	}
	reqs, err := s.friends.Requests(c.Request.Context(), sub)
	if err != nil {
		s.friendError(c, "list requests", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"friend_requests": reqs})
}

func (s *Server) ListFriends(c *gin.Context) {
	sub, ok := subject(c)
	if !ok {
		return
	}
	friends, err := s.friends.Friends(c.Request.Context(), sub)
	if err != nil {
		s.friendError(c, "list friends", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"friends": friends})
}

func (s *Server) RemoveFriend(c *gin.Context) {
	sub, ok := subject(c)
	if !ok {
		return
	}
	if err := s.friends.Remove(c.Request.Context(), sub, c.Param("username")); err != nil {
		s.friendError(c, "remove friend", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

// SearchPlayers returns up to ten usernames containing the query.
func (s *Server) SearchPlayers(c *gin.Context) {
	sub, ok := subject(c)
	if !ok {
		return
	}
	q := strings.TrimSpace(c.Param("query"))
	if n := utf8.RuneCountInString(q); n == 0 || n > maxSearchLen {
		s.badRequest(c, "query must be between 1 and 30 characters")
		return
	}
	users, err := s.friends.Search(c.Request.Context(), sub, q, searchResults)
	if err != nil {
		s.friendError(c, "search", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}
