//
// Tencent is pleased to support the open source community by making trpc-chatgraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatgraph-go is licensed under the Apache License Version 2.0.
//
//

// Package chat provides a HTTP server exposing conversation threads. Turns
// stream graph events as server-sent events.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"trpc.group/trpc-go/trpc-chatgraph-go/graph"
	"trpc.group/trpc-go/trpc-chatgraph-go/log"
	"trpc.group/trpc-go/trpc-chatgraph-go/runner"
)

// TurnRequest is the body of the turn and answer endpoints.
type TurnRequest struct {
	Message string `json:"message"`
}

// Server exposes a runner over HTTP.
type Server struct {
	runner runner.Runner
	router *mux.Router

	allowedOrigins []string
}

// Option configures the Server instance.
type Option func(*Server)

// WithAllowedOrigins restricts CORS origins. Defaults to any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.allowedOrigins = origins }
}

// New creates a server for r.
func New(r runner.Runner, opts ...Option) *Server {
	s := &Server{
		runner:         r,
		router:         mux.NewRouter(),
		allowedOrigins: []string{"*"},
	}
	for _, opt := range opts {
		opt(s)
	}
	c := cors.New(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Content-Length", "Content-Type"},
	})
	s.router.Use(c.Handler)
	s.registerRoutes()
	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/threads/{threadId}/turns", s.handleTurn).Methods(http.MethodPost)
	s.router.HandleFunc("/threads/{threadId}/answer", s.handleAnswer).Methods(http.MethodPost)
	s.router.HandleFunc("/threads/{threadId}/resume", s.handleResume).Methods(http.MethodPost)
	s.router.HandleFunc("/threads/{threadId}/state", s.handleState).Methods(http.MethodGet)
	s.router.HandleFunc("/threads/{threadId}/history", s.handleHistory).Methods(http.MethodGet)
	s.router.HandleFunc("/threads/{threadId}", s.handleDelete).Methods(http.MethodDelete)

	preflight := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
	s.router.PathPrefix("/threads/").HandlerFunc(preflight).Methods(http.MethodOptions)
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	threadID := mux.Vars(r)["threadId"]
	log.Debugf("handleTurn called: thread=%s", threadID)
	req, ok := decodeTurn(w, r)
	if !ok {
		return
	}
	s.stream(w, func(ctx context.Context) (<-chan *graph.Event, error) {
		return s.runner.Run(ctx, threadID, req.Message)
	}, r)
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	threadID := mux.Vars(r)["threadId"]
	log.Debugf("handleAnswer called: thread=%s", threadID)
	req, ok := decodeTurn(w, r)
	if !ok {
		return
	}
	s.stream(w, func(ctx context.Context) (<-chan *graph.Event, error) {
		return s.runner.Answer(ctx, threadID, req.Message)
	}, r)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	threadID := mux.Vars(r)["threadId"]
	log.Debugf("handleResume called: thread=%s", threadID)
	s.stream(w, func(ctx context.Context) (<-chan *graph.Event, error) {
		return s.runner.Resume(ctx, threadID)
	}, r)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap, err := s.runner.State(r.Context(), mux.Vars(r)["threadId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	history, err := s.runner.History(r.Context(), mux.Vars(r)["threadId"], limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.runner.Delete(r.Context(), mux.Vars(r)["threadId"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// stream starts a run and relays its events as SSE. The run is detached
// from client cancellation: a dropped connection stops the relay, not the
// turn.
func (s *Server) stream(w http.ResponseWriter, start func(context.Context) (<-chan *graph.Event, error), r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	out, err := start(context.WithoutCancel(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	clientGone := false
	for e := range out {
		if clientGone {
			continue
		}
		data, err := json.Marshal(e)
		if err != nil {
			log.Errorf("Error marshalling SSE event: %v", err)
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			clientGone = true
			continue
		}
		flusher.Flush()
	}
}

func decodeTurn(w http.ResponseWriter, r *http.Request) (TurnRequest, bool) {
	defer r.Body.Close()
	var req TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, runner.ErrEmptyMessage), errors.Is(err, graph.ErrThreadIDRequired):
		return http.StatusBadRequest
	case errors.Is(err, runner.ErrNotAwaitingHuman), errors.Is(err, graph.ErrNothingToResume):
		return http.StatusConflict
	case errors.Is(err, graph.ErrExecutorClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := statusOf(err)
	if code == http.StatusInternalServerError {
		log.Errorf("chat server: %v", err)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
