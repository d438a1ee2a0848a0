// Package http serves the small ops surface next to the delivery engine:
// health, run status, and the mute/notify endpoints the email links point at.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/GovTribe/notify/internal/delivery"
	"github.com/GovTribe/notify/internal/model"
	"github.com/GovTribe/notify/internal/prefs"
	"github.com/GovTribe/notify/pkg/logx"
)

// RecipientStore is the slice of the store the ops surface needs.
type RecipientStore interface {
	GetRecipient(ctx context.Context, id string) (*model.Recipient, error)
	SaveRecipient(ctx context.Context, r *model.Recipient) error
}

// StatsSource exposes orchestrator run counters.
type StatsSource interface {
	Stats() delivery.Stats
}

type Config struct {
	Addr string
}

type Server struct {
	cfg        Config
	recipients RecipientStore
	stats      StatsSource
	log        logx.Logger

	srv *http.Server
}

func New(cfg Config, recipients RecipientStore, stats StatsSource, log logx.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8087"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{cfg: cfg, recipients: recipients, stats: stats, log: log}
}

func (s *Server) router() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Route("/recipients/{recipientID}/tracked/{itemID}", func(tr chi.Router) {
		tr.Post("/mute", s.handleSetChannel(false))
		tr.Post("/notify", s.handleSetChannel(true))
	})
	return r
}

// Start runs the server until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("ops server listening", logx.String("addr", s.cfg.Addr))
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stats.Stats())
}

// handleSetChannel flips the email channel for one tracked item. This is the
// target of the mute/notify links embedded in notification email.
func (s *Server) handleSetChannel(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recipientID := chi.URLParam(r, "recipientID")
		itemID := chi.URLParam(r, "itemID")

		rec, err := s.recipients.GetRecipient(r.Context(), recipientID)
		if err != nil || rec == nil {
			http.Error(w, "recipient not found", http.StatusNotFound)
			return
		}
		if !prefs.IsTracking(rec, itemID) {
			http.Error(w, "item not tracked", http.StatusNotFound)
			return
		}

		if enabled {
			prefs.Enable(rec, itemID, model.ChannelEmail)
		} else {
			prefs.Disable(rec, itemID, model.ChannelEmail)
		}
		if err := s.recipients.SaveRecipient(r.Context(), rec); err != nil {
			s.log.Error("recipient save failed", logx.String("recipient", recipientID), logx.Err(err))
			http.Error(w, "save failed", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"recipient": recipientID,
			"item":      itemID,
			"email":     enabled,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
