package ws

import (
	"encoding/json"
	"time"
)

const EventRecommendationsUpdated = "recommendations_updated"

type RecommendationsUpdatedEvent struct {
	Type       string `json:"type"`
	UserID     int64  `json:"user_id"`
	SavedCount int    `json:"saved_count"`
	Timestamp  string `json:"timestamp"`
}

// RecommendationsUpdated tells userID's open sockets that their cache was recomputed.
func (h *Hub) RecommendationsUpdated(userID int64, savedCount int) {
	if h == nil || userID <= 0 {
		return
	}
	b, err := json.Marshal(RecommendationsUpdatedEvent{
		Type:       EventRecommendationsUpdated,
		UserID:     userID,
		SavedCount: savedCount,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	h.SendToUser(userID, b)
}
