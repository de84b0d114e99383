package httpapi

import (
	"errors"
	"net/http"
	"time"

	"livelinks-platform/internal/auth"
	"livelinks-platform/internal/identity"
	"livelinks-platform/internal/media"
	"livelinks-platform/internal/signaling"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth     *auth.Manager
	Tokens   *media.TokenService
	Calls    signaling.Store
	Profiles identity.ProfileStore
}

// --- Auth ---

type loginRequest struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.Username == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, username required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.Username)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Media tokens ---

type mediaTokenRequest struct {
	RoomName        string `json:"room_name"`
	ParticipantName string `json:"participant_name"`
	CanPublish      bool   `json:"can_publish"`
	CanSubscribe    bool   `json:"can_subscribe"`
}

// MediaToken mints a room credential for a call participant.
// Authorization is call-based: the requesting user must be the caller or
// callee of the live call owning the room.
func (h Handlers) MediaToken(c *gin.Context) {
	if h.Tokens == nil || h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "media not configured"})
		return
	}
	userID, err := auth.UserID(c.Request.Context())
	if err != nil || userID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	var req mediaTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.RoomName == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "room_name required"})
		return
	}

	row, err := h.Calls.GetCallByRoom(c.Request.Context(), req.RoomName)
	if err != nil {
		if errors.Is(err, signaling.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call lookup failed"})
		return
	}
	if row.PeerOf(userID) == "" {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not a participant of this call"})
		return
	}
	if row.Status.Terminal() {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "call already ended"})
		return
	}

	cred, err := h.Tokens.Mint(time.Now(), req.RoomName, userID, req.ParticipantName)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token mint failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": cred.Token, "url": cred.URL})
}

// --- Profiles ---

func (h Handlers) GetProfile(c *gin.Context) {
	if h.Profiles == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "profiles not configured"})
		return
	}
	id := c.Param("user_id")
	if id == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}
	profile, ok, err := h.Profiles.GetProfile(c.Request.Context(), id)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "profile lookup failed"})
		return
	}
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		return
	}
	c.JSON(http.StatusOK, profile)
}

// --- Calls ---

// GetActiveCall returns the requesting user's live call, if any. Clients use
// it to restore an in-progress call after a restart.
func (h Handlers) GetActiveCall(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	userID, err := auth.UserID(c.Request.Context())
	if err != nil || userID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	active, ok, err := h.Calls.GetActiveCall(c.Request.Context(), userID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call lookup failed"})
		return
	}
	if !ok {
		c.JSON(http.StatusOK, gin.H{"active": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": true, "call": active})
}
