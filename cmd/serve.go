package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lumenreach/visibility-cli/internal/model"
	"github.com/lumenreach/visibility-cli/internal/pipeline"
	"github.com/lumenreach/visibility-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for pipeline runs and status reads",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Get("/businesses", func(w http.ResponseWriter, req *http.Request) {
			businesses, err := env.Store.ListBusinesses(req.Context(), store.BusinessFilter{
				Status: model.BusinessStatus(req.URL.Query().Get("status")),
				TeamID: req.URL.Query().Get("team"),
			})
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, businesses)
		})

		r.Get("/businesses/{id}", func(w http.ResponseWriter, req *http.Request) {
			business, err := env.Store.GetBusiness(req.Context(), chi.URLParam(req, "id"))
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, err)
				return
			}
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, business)
		})

		r.Get("/businesses/{id}/fingerprint", func(w http.ResponseWriter, req *http.Request) {
			fp, err := env.Store.GetLatestFingerprint(req.Context(), chi.URLParam(req, "id"))
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, err)
				return
			}
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, fp)
		})

		r.Post("/businesses/{id}/run", func(w http.ResponseWriter, req *http.Request) {
			id := chi.URLParam(req, "id")
			var body struct {
				Publish bool `json:"publish"`
			}
			if req.Body != nil {
				_ = json.NewDecoder(req.Body).Decode(&body)
			}

			if _, err := env.Store.GetBusiness(req.Context(), id); errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, err)
				return
			} else if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}

			// The run outlives the request; single-flight rejects a duplicate.
			go func() {
				result, runErr := env.Pipeline.Run(ctx, id, body.Publish)
				if runErr != nil {
					var conflict *pipeline.ConflictError
					if errors.As(runErr, &conflict) {
						zap.L().Info("api run rejected, already in flight", zap.String("business_id", id))
						return
					}
					zap.L().Error("api run failed", zap.String("business_id", id), zap.Error(runErr))
					return
				}
				zap.L().Info("api run complete",
					zap.String("business_id", id),
					zap.String("status", string(result.Business.Status)))
			}()

			writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "business_id": id})
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
