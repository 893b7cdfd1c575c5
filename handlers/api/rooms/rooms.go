package rooms

import (
	"context"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"codecollab-server/collab"
	"codecollab-server/core"
)

type (
	RoomReader interface {
		Rooms(ctx context.Context) []collab.RoomSummary
		Document(roomID core.RoomID) (core.Document, bool)
	}

	DocumentResponse struct {
		ID       core.RoomID   `json:"id"`
		Document core.Document `json:"document"`
	}
)

// HandleList lists active rooms, busiest first.
func HandleList(reader RoomReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms := reader.Rooms(r.Context())

		sort.SliceStable(rooms, func(i, j int) bool {
			if rooms[i].Users == rooms[j].Users {
				if rooms[i].LastActive == rooms[j].LastActive {
					return rooms[i].ID < rooms[j].ID
				}
				return rooms[i].LastActive > rooms[j].LastActive
			}
			return rooms[i].Users > rooms[j].Users
		})

		logrus.WithField("rooms", len(rooms)).Debug("Listing rooms")
		render.JSON(w, r, rooms)
	}
}

// HandleGet returns the shared document of one room.
func HandleGet(reader RoomReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := core.RoomID(chi.URLParam(r, "roomId"))

		doc, ok := reader.Document(roomID)
		if !ok {
			logrus.WithField("room_id", roomID).Debug("Room has no document")
			http.Error(w, "Room not found", http.StatusNotFound)
			return
		}

		render.JSON(w, r, DocumentResponse{ID: roomID, Document: doc})
	}
}
