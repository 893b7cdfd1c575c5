package run

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"codecollab-server/core"
	"codecollab-server/execution"
)

type DocumentReader interface {
	Document(roomID core.RoomID) (core.Document, bool)
}

// HandleRun compiles and runs a room's mirrored code against its mirrored input.
// The room comes from the {roomId} path parameter or the roomId query parameter.
// The reply is stderr when the program wrote any and stdout otherwise, or the full
// result with ?format=json.
func HandleRun(store core.ArtifactStore, documents DocumentReader, runner execution.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := core.RoomID(chi.URLParam(r, "roomId"))
		if roomID == "" {
			roomID = core.RoomID(r.URL.Query().Get("roomId"))
		}
		if roomID == "" {
			http.Error(w, "roomId is required", http.StatusBadRequest)
			return
		}
		log := logrus.WithField("room_id", roomID)

		code, err := store.Read(r.Context(), roomID, core.ArtifactCode)
		if err != nil {
			if errors.Is(err, core.ErrArtifactNotFound) {
				http.Error(w, "Room has no code", http.StatusNotFound)
				return
			}
			log.WithField("error", err).Error("Failed to read code")
			http.Error(w, "Failed to read code", http.StatusInternalServerError)
			return
		}

		stdin, err := store.Read(r.Context(), roomID, core.ArtifactInput)
		if err != nil && !errors.Is(err, core.ErrArtifactNotFound) {
			log.WithField("error", err).Error("Failed to read input")
			http.Error(w, "Failed to read input", http.StatusInternalServerError)
			return
		}

		var language string
		if doc, ok := documents.Document(roomID); ok && doc.LanguageUsed != nil {
			language = *doc.LanguageUsed
		}

		result, err := runner.Run(r.Context(), execution.Request{
			Language: language,
			Code:     code,
			Stdin:    stdin,
		})
		if err != nil {
			if errors.Is(err, execution.ErrUnsupportedLanguage) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			log.WithField("error", err).Error("Failed to run program")
			http.Error(w, "Failed to run program", http.StatusInternalServerError)
			return
		}

		if r.URL.Query().Get("format") == "json" {
			render.JSON(w, r, result)
			return
		}
		render.PlainText(w, r, result.Output())
	}
}
