package websocket

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"parking-marketplace-server/middleware"
	"parking-marketplace-server/models"
)

// FeedHandler upgrades authenticated clients onto the live booking feed
type FeedHandler struct {
	hub *Hub
}

func NewFeedHandler(hub *Hub) *FeedHandler {
	return &FeedHandler{hub: hub}
}

// HandleFeed upgrades the connection. Requires AuthMiddleware upstream.
func (h *FeedHandler) HandleFeed(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		log.Printf("❌ No authenticated user for feed WebSocket")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	ServeWebSocket(h.hub, c.Writer, c.Request, user.ID, string(user.Role))
}

// EventBridge adapts the hub to the booking core's event sink. Events go to
// the driver and the space owner; admins see everything through the REST
// surface instead.
type EventBridge struct {
	hub *Hub
}

func NewEventBridge(hub *Hub) *EventBridge {
	return &EventBridge{hub: hub}
}

func (b *EventBridge) Publish(event string, booking *models.Booking) {
	if booking == nil {
		return
	}

	message := &Message{
		Type:      event,
		BookingID: booking.ID,
		SpaceID:   booking.SpaceID,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"status":           booking.Status,
			"start_time":       booking.StartTime,
			"end_time":         booking.EndTime,
			"total_cost_pence": booking.TotalCostPence,
		},
	}

	b.hub.SendToUser(booking.UserID, message)
	if booking.Space.OwnerID != 0 && booking.Space.OwnerID != booking.UserID {
		b.hub.SendToUser(booking.Space.OwnerID, message)
	}
}
