package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/sherndon-labs/adventurecore/internal/orchestrator"
	"github.com/sherndon-labs/adventurecore/internal/phaseloop"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the story loop and its HTTP surface (health, metrics, ad-hoc DAG admin)",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	deps, err := buildStoryLoopDeps(rt)
	if err != nil {
		return err
	}
	machine := phaseloop.New(deps)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	adventureID := uuid.NewString()
	runErr := make(chan error, 1)
	go func() { runErr <- machine.Run(ctx, adventureID) }()
	log.Printf("adventurecore: story loop started, adventure=%s", adventureID)

	srv := &http.Server{Addr: rt.cfg.HTTPAddr, Handler: buildHTTPMux(rt)}
	serveErr := make(chan error, 1)
	go func() {
		log.Printf("adventurecore: http listening on %s", rt.cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sig:
		log.Print("adventurecore: shutdown signal received")
	case err := <-serveErr:
		log.Printf("adventurecore: http server error: %v", err)
	case err := <-runErr:
		if err != nil {
			log.Printf("adventurecore: story loop exited with error: %v", err)
		}
	}

	machine.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.GracefulShutdownTimeout())
	defer shutdownCancel()
	rt.persistSnapshot(shutdownCtx, adventureID)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("adventurecore: http shutdown error: %v", err)
	}

	select {
	case <-runErr:
	case <-shutdownCtx.Done():
		log.Print("adventurecore: story loop did not stop before the graceful shutdown timeout")
	}

	return nil
}

// buildHTTPMux mirrors the teacher's control_plane/main.go route-table
// shape: one handler per concern registered on a single ServeMux, metrics
// exposed via promhttp.Handler at /metrics.
func buildHTTPMux(rt *runtime) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/adventures", adventuresHandler(rt))
	return mux
}

// adventuresHandler exposes the Orchestrator Manager (spec §4.I) over
// HTTP for ad-hoc DAG-config admin work alongside the running story loop —
// GET lists active adventures, POST{name} starts one.
func adventuresHandler(rt *runtime) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, map[string]any{"active": rt.orch.GetActiveAdventures()})
		case http.MethodPost:
			var body struct {
				Name string `json:"name"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
				http.Error(w, "expected a JSON body with a non-empty \"name\"", http.StatusBadRequest)
				return
			}
			h, err := rt.orch.StartAdventure(body.Name, orchestrator.StartOptions{})
			if err != nil {
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
			writeJSON(w, http.StatusAccepted, map[string]any{"id": h.ID})
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
