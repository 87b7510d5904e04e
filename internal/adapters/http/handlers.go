package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/dkeye/Chat/internal/adapters/signal"
	"github.com/dkeye/Chat/internal/adapters/storage"
	"github.com/dkeye/Chat/internal/app"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Store is the persistence surface of the REST API.
type Store interface {
	CreateRoom(ctx context.Context, name, description string, creator domain.UserID) (domain.Room, error)
	GetRoom(ctx context.Context, id domain.RoomID) (domain.Room, error)
	ListMessages(ctx context.Context, roomID domain.RoomID, before domain.MessageID, limit int) ([]domain.Message, error)

	Subscribe(ctx context.Context, roomID domain.RoomID, userID domain.UserID) (domain.Subscription, error)
	Unsubscribe(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error
	IsSubscribed(ctx context.Context, roomID domain.RoomID, userID domain.UserID) (bool, error)
	ListUserSubscriptions(ctx context.Context, userID domain.UserID) ([]domain.Subscription, error)

	ListNotifications(ctx context.Context, userID domain.UserID) ([]domain.Notification, error)
	MarkRoomRead(ctx context.Context, userID domain.UserID, roomID domain.RoomID) (int64, error)
	MarkAllRead(ctx context.Context, userID domain.UserID) (int64, error)
}

type handlers struct {
	store Store
	dir   *app.RoomDirectory
}

func userOf(c *gin.Context) domain.UserID {
	return domain.UserID(c.GetString(signal.CtxUserID))
}

// fail maps store errors to status codes.
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, storage.ErrRoomNameInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (h *handlers) whoAmI(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"id": userOf(c), "username": c.GetString(signal.CtxUsername)})
}

type createRoomRequest struct {
	Name        string `json:"name" binding:"required,max=64"`
	Description string `json:"description" binding:"max=500"`
}

func (h *handlers) createRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	room, err := h.store.CreateRoom(c.Request.Context(), req.Name, req.Description, userOf(c))
	if err != nil {
		fail(c, err)
		return
	}
	log.Info().Str("module", "adapters.http").Str("room", string(room.ID)).Str("user", string(room.CreatorID)).Msg("room created")
	c.JSON(http.StatusCreated, room)
}

func (h *handlers) listRooms(c *gin.Context) {
	rooms, err := h.dir.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rooms)
}

func (h *handlers) liveRooms(c *gin.Context) {
	c.JSON(http.StatusOK, h.dir.Live())
}

func (h *handlers) getRoom(c *gin.Context) {
	room, err := h.store.GetRoom(c.Request.Context(), domain.RoomID(c.Param("id")))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.RoomView{Room: room, MemberCount: h.dir.Rooms.MemberCount(room.ID)})
}

func (h *handlers) roomMembers(c *gin.Context) {
	c.JSON(http.StatusOK, h.dir.Members(domain.RoomID(c.Param("id"))))
}

func (h *handlers) roomMessages(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive number"})
			return
		}
		limit = n
	}
	ctx := c.Request.Context()
	roomID := domain.RoomID(c.Param("id"))
	if _, err := h.store.GetRoom(ctx, roomID); err != nil {
		fail(c, err)
		return
	}
	msgs, err := h.store.ListMessages(ctx, roomID, domain.MessageID(c.Query("before")), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *handlers) subscribe(c *gin.Context) {
	sub, err := h.store.Subscribe(c.Request.Context(), domain.RoomID(c.Param("roomId")), userOf(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

func (h *handlers) unsubscribe(c *gin.Context) {
	if err := h.store.Unsubscribe(c.Request.Context(), domain.RoomID(c.Param("roomId")), userOf(c)); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) isSubscribed(c *gin.Context) {
	ok, err := h.store.IsSubscribed(c.Request.Context(), domain.RoomID(c.Param("roomId")), userOf(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscribed": ok})
}

func (h *handlers) mySubscriptions(c *gin.Context) {
	subs, err := h.store.ListUserSubscriptions(c.Request.Context(), userOf(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, subs)
}

func (h *handlers) myNotifications(c *gin.Context) {
	list, err := h.store.ListNotifications(c.Request.Context(), userOf(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *handlers) markAllRead(c *gin.Context) {
	n, err := h.store.MarkAllRead(c.Request.Context(), userOf(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func (h *handlers) markRoomRead(c *gin.Context) {
	n, err := h.store.MarkRoomRead(c.Request.Context(), userOf(c), domain.RoomID(c.Param("roomId")))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}
