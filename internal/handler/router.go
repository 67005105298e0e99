package handler

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"voicemail-bridge/internal/config"
	voiceHandler "voicemail-bridge/internal/handler/voice"
	"voicemail-bridge/internal/security"
	callService "voicemail-bridge/internal/service/call"
	inboxService "voicemail-bridge/internal/service/inbox"
	"voicemail-bridge/internal/store"
	"voicemail-bridge/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(st *store.Store, inboxSvc *inboxService.Service, callSvc *callService.Service, validator *security.Validator, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if err := st.Ping(req.Context()); err != nil {
			log.Printf("[readyz] store probe failed: %v", err)
			utils.RespondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "error",
				"reason": err.Error(),
			})
			return
		}
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	r.Post("/sync", func(w http.ResponseWriter, req *http.Request) {
		inserted, err := inboxSvc.Sync(req.Context())
		if err != nil {
			log.Printf("[sync] ingestion pass failed: %v", err)
			utils.RespondError(w, http.StatusBadGateway, "message source unavailable")
			return
		}

		unread, err := st.UnreadCount(req.Context(), cfg.Telegram.AllowedChatID)
		if err != nil {
			utils.RespondError(w, http.StatusInternalServerError, "internal error")
			return
		}

		utils.RespondJSON(w, http.StatusOK, map[string]int{"inserted": inserted, "unread": unread})
	})

	voiceH := voiceHandler.New(callSvc, validator, cfg.Twilio.BaseURL)
	r.Route("/voice", func(vr chi.Router) {
		voiceH.RegisterRoutes(vr)
	})

	return r
}
