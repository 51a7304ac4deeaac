// Copyright (C) 2025 CaseGraph (dev@casegraph.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package chat

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// AskRequest is the /v1/ask request body.
type AskRequest struct {
	Query string `json:"query" binding:"required"`
}

// Handlers exposes the pipeline over HTTP.
type Handlers struct {
	pipeline *Pipeline
	logger   *slog.Logger
}

// NewHandlers creates the HTTP handlers.
func NewHandlers(pipeline *Pipeline, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{pipeline: pipeline, logger: logger}
}

// RegisterRoutes registers the chat endpoints with the router group.
//
//	POST /v1/ask    - Answer one question
//	GET  /v1/health - Liveness check
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	rg.POST("/ask", h.AskHandler)
	rg.GET("/health", h.HealthHandler)
}

// AskHandler answers a single question.
//
// # Description
//
// Binds the JSON body, runs the pipeline, and returns the Response as JSON.
// An empty or whitespace query is a 400; pipeline failures are 502 because
// they mean a backing service (embedding provider or chat model) failed,
// not the request.
func (h *Handlers) AskHandler(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be {\"query\": \"...\"}"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query must not be empty"})
		return
	}

	resp, err := h.pipeline.Ask(c.Request.Context(), req.Query)
	if err != nil {
		h.logger.Error("ask request failed", slog.String("error", err.Error()))
		c.JSON(http.StatusBadGateway, gin.H{"error": "pipeline failure"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HealthHandler reports liveness.
func (h *Handlers) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
