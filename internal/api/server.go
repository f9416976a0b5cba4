// SPDX-FileCopyrightText: 2025 夕月霞
// SPDX-License-Identifier: AGPL-3.0-or-later
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// registerJSONHandler mounts one POST JSON RPC-style endpoint on r, keeping
// server.go's validate-then-exec shape and slow-request warning timer, now
// wired through chi instead of the bare http.HandleFunc mux.
func registerJSONHandler[ReqT any, RespT any](r chi.Router, path string, validate func(*ReqT) error, exec func(*ReqT) (*RespT, error)) {
	r.Post(path, func(w http.ResponseWriter, req *http.Request) {
		var body ReqT
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, "invalid JSON: %v", err)
			return
		}

		if err := validate(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, "invalid request: %v", err)
			return
		}

		slowTimer := time.AfterFunc(1*time.Second, func() {
			dump, err := json.Marshal(body)
			dumpBody := "unknown"
			if err == nil {
				dumpBody = string(dump)
			}
			slog.Warn("api exec taking more than 1 second", "path", path, "req", dumpBody)
		})
		resp, err := exec(&body)
		slowTimer.Stop()
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(resp)
	})
}

// NewRouter mounts every GrblAPI endpoint on a fresh chi.Router, including
// CORS headers for browser-based embedders (ground: server.go's manual CORS
// headers, now via chi's cors-shaped middleware composition) and request
// logging.
func NewRouter(impl GrblAPI) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(corsHeaders)

	registerJSONHandler(r, "/connect", validateConnect, impl.Connect)
	registerJSONHandler(r, "/disconnect", validateDisconnect, impl.Disconnect)
	registerJSONHandler(r, "/write-line", validateWriteLine, impl.WriteLine)
	registerJSONHandler(r, "/stream", validateStream, impl.Stream)
	registerJSONHandler(r, "/query-lines", validateQueryLines, impl.QueryLines)
	registerJSONHandler(r, "/halt", validateHalt, impl.Halt)
	registerJSONHandler(r, "/unstash", validateUnstash, impl.Unstash)
	registerJSONHandler(r, "/pause", validatePause, impl.Pause)
	registerJSONHandler(r, "/resume", validateResume, impl.Resume)
	registerJSONHandler(r, "/softreset", validateSoftReset, impl.SoftReset)
	registerJSONHandler(r, "/set-streaming-mode", validateSetStreamingMode, impl.SetStreamingMode)
	registerJSONHandler(r, "/set-feed-override", validateSetFeedOverride, impl.SetFeedOverride)
	registerJSONHandler(r, "/request-feed", validateRequestFeed, impl.RequestFeed)
	registerJSONHandler(r, "/set-init", validateSetInit, impl.SetInit)
	registerJSONHandler(r, "/get-init", validateGetInit, impl.GetInit)
	registerJSONHandler(r, "/status", validateGetStatus, impl.GetStatus)
	registerJSONHandler(r, "/add-job", validateAddJob, impl.AddJob)
	registerJSONHandler(r, "/list-jobs", validateListJobs, impl.ListJobs)
	registerJSONHandler(r, "/cancel-job", validateCancelJob, impl.CancelJob)
	registerJSONHandler(r, "/query-ts", validateQueryTS, impl.QueryTS)
	registerJSONHandler(r, "/request-settings", validateRequestSettings, impl.RequestSettings)
	registerJSONHandler(r, "/request-hash-state", validateRequestHashState, impl.RequestHashState)
	registerJSONHandler(r, "/request-parser-state", validateRequestParserState, impl.RequestParserState)

	return r
}

func corsHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
