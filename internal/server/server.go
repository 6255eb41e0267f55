// ABOUTME: HTTP handlers for scan submission, results, and quarantine decisions.
// ABOUTME: JSON in/out with query validation; pretty-printing on request.

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sigil-dev/sigil/internal/engine"
	"github.com/sigil-dev/sigil/internal/metrics"
	"github.com/sigil-dev/sigil/internal/quarantine"
	"github.com/sigil-dev/sigil/internal/types"
)

const maxRecentResults = 1000

// Handler bundles the HTTP surface over the scan engine and quarantine store.
type Handler struct {
	engine   *engine.Engine
	store    *quarantine.Store
	recorder *metrics.Recorder
	logger   *logrus.Logger

	mu      sync.RWMutex
	results []*types.ScanResult
}

func NewHandler(e *engine.Engine, store *quarantine.Store, recorder *metrics.Recorder, logger *logrus.Logger) *Handler {
	return &Handler{
		engine:   e,
		store:    store,
		recorder: recorder,
		logger:   logger,
	}
}

// ScanRequest is the POST /scan body.
type ScanRequest struct {
	Path       string `json:"path"`
	Target     string `json:"target"`
	AuthorID   string `json:"author_id,omitempty"`
	SourceType string `json:"source_type,omitempty"`

	// Quarantine admits the artifact for a human decision when the scan
	// finds anything.
	Quarantine bool `json:"quarantine,omitempty"`
}

// ScanResponse wraps the result with the quarantine entry, when one was
// created.
type ScanResponse struct {
	Result     *types.ScanResult      `json:"result"`
	Quarantine *types.QuarantineEntry `json:"quarantine,omitempty"`
}

// HandleScan serves POST /scan.
func (h *Handler) HandleScan(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.WithField("endpoint", "/scan")

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Path == "" || req.Target == "" {
		http.Error(w, "Both path and target are required", http.StatusBadRequest)
		return
	}
	if len(req.Target) > 200 {
		http.Error(w, "Target too long. Maximum allowed is 200 characters", http.StatusBadRequest)
		return
	}

	result, err := h.engine.Scan(r.Context(), engine.ScanRequest{
		Path:     req.Path,
		Target:   req.Target,
		AuthorID: req.AuthorID,
	})
	if err != nil {
		var inputErr *types.InputError
		if errors.As(err, &inputErr) {
			http.Error(w, "Scan target is not readable", http.StatusBadRequest)
			return
		}
		logger.WithError(err).Error("Scan failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.recorder.RecordScan(result)
	h.remember(result)

	resp := ScanResponse{Result: result}
	if req.Quarantine && len(result.Findings) > 0 {
		sourceType := req.SourceType
		if sourceType == "" {
			sourceType = "package"
		}
		entry, err := h.store.Admit(result.ContentHash, req.Target, sourceType, req.Path)
		if err != nil {
			logger.WithError(err).Error("Quarantine admission failed")
			http.Error(w, "Scan succeeded but quarantine admission failed", http.StatusInternalServerError)
			return
		}
		resp.Quarantine = entry
	}

	logger.WithFields(logrus.Fields{
		"target":  req.Target,
		"verdict": string(result.Verdict),
		"score":   result.Score,
	}).Info("Served scan request")
	h.writeJSON(w, r, resp)
}

// HandleResults serves GET /results with optional verdict and limit filters.
func (h *Handler) HandleResults(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.WithField("endpoint", "/results")

	verdictFilter := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("verdict")))
	if verdictFilter != "" {
		valid := map[string]bool{"CLEAN": true, "LOW": true, "MEDIUM": true, "HIGH": true, "CRITICAL": true}
		if !valid[verdictFilter] {
			http.Error(w, "Invalid verdict filter. Must be one of: CLEAN, LOW, MEDIUM, HIGH, CRITICAL", http.StatusBadRequest)
			return
		}
	}

	limit := 0
	if limitParam := strings.TrimSpace(r.URL.Query().Get("limit")); limitParam != "" {
		parsed, err := strconv.Atoi(limitParam)
		if err != nil || parsed < 0 {
			http.Error(w, "Invalid limit parameter. Must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	h.mu.RLock()
	var filtered []*types.ScanResult
	for i := len(h.results) - 1; i >= 0; i-- {
		result := h.results[i]
		if verdictFilter != "" && string(result.Verdict) != verdictFilter {
			continue
		}
		filtered = append(filtered, result)
		if limit > 0 && len(filtered) >= limit {
			break
		}
	}
	h.mu.RUnlock()

	logger.WithFields(logrus.Fields{
		"verdict_filter": verdictFilter,
		"returned":       len(filtered),
	}).Debug("Served results request")
	h.writeJSON(w, r, map[string]interface{}{
		"results": filtered,
		"total":   len(filtered),
	})
}

// HandleQuarantineList serves GET /quarantine.
func (h *Handler) HandleQuarantineList(w http.ResponseWriter, r *http.Request) {
	statusFilter := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status")))
	if statusFilter != "" {
		valid := map[string]bool{"pending": true, "approved": true, "rejected": true}
		if !valid[statusFilter] {
			http.Error(w, "Invalid status filter. Must be one of: pending, approved, rejected", http.StatusBadRequest)
			return
		}
	}

	entries := h.store.List(quarantine.Filter{
		Status:     types.QuarantineStatus(statusFilter),
		SourceType: strings.TrimSpace(r.URL.Query().Get("source_type")),
	})
	h.writeJSON(w, r, map[string]interface{}{
		"entries": entries,
		"total":   len(entries),
	})
}

// HandleQuarantineDecision serves POST /quarantine/{id}/approve and
// /quarantine/{id}/reject.
func (h *Handler) HandleQuarantineDecision(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.WithField("endpoint", "/quarantine")

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 || parts[0] != "quarantine" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	id, action := parts[1], parts[2]

	var entry *types.QuarantineEntry
	var err error
	switch action {
	case "approve":
		entry, err = h.store.Approve(id)
	case "reject":
		entry, err = h.store.Reject(id)
	default:
		http.Error(w, "Unknown action. Must be approve or reject", http.StatusBadRequest)
		return
	}

	if err != nil {
		if errors.Is(err, types.ErrInvalidTransition) {
			http.Error(w, "Entry already decided", http.StatusConflict)
			return
		}
		var storageErr *types.StorageFailure
		if errors.As(err, &storageErr) {
			if errors.Is(storageErr.Err, os.ErrNotExist) {
				http.Error(w, "Unknown quarantine entry", http.StatusNotFound)
				return
			}
			logger.WithError(err).Error("Quarantine decision failed, entry stays pending")
			http.Error(w, "Storage failure, entry unchanged", http.StatusInternalServerError)
			return
		}
		logger.WithError(err).Error("Quarantine decision failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	logger.WithFields(logrus.Fields{
		"entry_id": id,
		"action":   action,
	}).Info("Quarantine decision applied")
	h.writeJSON(w, r, entry)
}

// remember keeps the most recent results for GET /results.
func (h *Handler) remember(result *types.ScanResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results = append(h.results, result)
	if len(h.results) > maxRecentResults {
		h.results = h.results[len(h.results)-maxRecentResults:]
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	encoder := json.NewEncoder(w)
	if r.URL.Query().Get("pretty") != "" {
		encoder.SetIndent("", "  ")
	}
	if err := encoder.Encode(v); err != nil {
		h.logger.WithError(err).Error("Failed to encode JSON response")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
