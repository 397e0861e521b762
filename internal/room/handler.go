package room

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/trackvote/pkg/errs"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	rooms := r.Group("/rooms")
	{
		rooms.POST("/", h.createRoom)
		rooms.GET("/code/:code", h.joinRoomByCode)
		rooms.GET("/:id", h.getRoom)
		rooms.DELETE("/:id", h.closeRoom)
		rooms.POST("/:id/queue", h.addToQueue)
		rooms.GET("/:id/queue", h.getQueue)
		rooms.POST("/:id/vote", h.vote)
		rooms.POST("/:id/next", h.advance)
		rooms.GET("/:id/history", h.getHistory)
	}
}

// statusFor makes the error mapping total: every kind the engine can
// return has a stable status, and anything else is a 500.
func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindConflict:
		return http.StatusConflict
	case errs.KindInvalidInput:
		return http.StatusBadRequest
	case errs.KindClosed:
		return http.StatusGone
	case errs.KindUnauthorized:
		return http.StatusForbidden
	case errs.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error(), "kind": errs.KindOf(err).String()})
}

type CreateRoomRequest struct {
	Name        string `json:"name" binding:"required"`
	MembersOnly bool   `json:"members_only"`
}

func (h *Handler) createRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString("user_id") // Set by auth middleware
	room, err := h.service.CreateRoom(c.Request.Context(), userID, req.Name, req.MembersOnly)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, room)
}

func (h *Handler) getRoom(c *gin.Context) {
	room, err := h.service.GetRoom(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, room)
}

// joinRoomByCode resolves the short code and records membership, so GET by
// code doubles as the join operation.
func (h *Handler) joinRoomByCode(c *gin.Context) {
	userID := c.GetString("user_id")
	room, err := h.service.JoinRoomByCode(c.Request.Context(), c.Param("code"), userID)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, room)
}

func (h *Handler) closeRoom(c *gin.Context) {
	userID := c.GetString("user_id")
	if err := h.service.CloseRoom(c.Request.Context(), c.Param("id"), userID); err != nil {
		fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type AddToQueueRequest struct {
	TrackID   string `json:"track_id" binding:"required"`
	TrackName string `json:"track_name" binding:"required"`
	Artist    string `json:"artist"`
}

func (h *Handler) addToQueue(c *gin.Context) {
	var req AddToQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString("user_id")
	entry, err := h.service.AddTrack(c.Request.Context(), c.Param("id"), req.TrackID, req.TrackName, req.Artist, userID)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, entry)
}

func (h *Handler) getQueue(c *gin.Context) {
	queue, err := h.service.Queue(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, queue)
}

type VoteRequest struct {
	TrackID string `json:"track_id" binding:"required"`
	Vote    int    `json:"vote" binding:"required,oneof=-1 1"`
}

func (h *Handler) vote(c *gin.Context) {
	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString("user_id")
	entry, err := h.service.CastVote(c.Request.Context(), c.Param("id"), req.TrackID, userID, req.Vote)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, entry)
}

// advance pops the top-ranked track. An empty queue is a normal outcome
// and comes back as 200 with a null entry, never an error.
func (h *Handler) advance(c *gin.Context) {
	userID := c.GetString("user_id")
	entry, err := h.service.AdvanceQueue(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entry": entry, "empty": entry == nil})
}

func (h *Handler) getHistory(c *gin.Context) {
	history, err := h.service.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, history)
}
