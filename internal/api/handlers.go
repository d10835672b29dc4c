// Copyright (c) 2025-2026 The parastats developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

const (
	// defaultListLimit is the number of rows returned by list endpoints
	// when the request does not specify a limit.
	defaultListLimit = 100

	// maxAddressLength bounds the length of an address path parameter.
	maxAddressLength = 100

	// maxTriggerIntervals bounds the number of intervals a single collect
	// request may trigger.
	maxTriggerIntervals = 5
)

// sendJSON writes the provided value to the response as JSON.
func sendJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		log.Errorf("unable to encode response: %v", err)
	}
}

// errorResponse represents a JSON error message.
type errorResponse struct {
	Error string `json:"error"`
}

// sendJSONError writes the provided message to the response as a JSON error.
func sendJSONError(w http.ResponseWriter, code int, msg string) {
	sendJSON(w, code, errorResponse{Error: msg})
}

// parseLimit returns the list limit of the provided request. A missing limit
// falls back to the default; a limit that does not parse as a positive
// integer is rejected. Values above the engine cap are clamped by the engine.
func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	return limit, nil
}

// parseAddress returns the address path parameter of the provided request.
func parseAddress(r *http.Request) (string, error) {
	address := mux.Vars(r)["address"]
	if address == "" {
		return "", fmt.Errorf("address cannot be empty")
	}
	if len(address) > maxAddressLength {
		return "", fmt.Errorf("address exceeds %d characters",
			maxAddressLength)
	}
	return address, nil
}

// recentWatermarks is the handler for "GET /api/v1/watermarks". It returns
// the most recent interval watermarks prepared for display.
func (a *API) recentWatermarks(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	watermarks, err := a.cfg.FetchRecentWatermarks(limit)
	if err != nil {
		log.Errorf("unable to fetch watermarks: %v", err)
		sendJSONError(w, http.StatusInternalServerError,
			"unable to fetch watermarks")
		return
	}
	sendJSON(w, http.StatusOK, watermarks)
}

// leaderboard is the handler for "GET /api/v1/leaderboard". It returns public
// participants ranked by watermark win count.
func (a *API) leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := a.cfg.FetchLeaderboard(limit)
	if err != nil {
		log.Errorf("unable to fetch leaderboard: %v", err)
		sendJSONError(w, http.StatusInternalServerError,
			"unable to fetch leaderboard")
		return
	}
	sendJSON(w, http.StatusOK, entries)
}

// combinedLeaderboard is the handler for "GET /api/v1/leaderboard/combined".
// It returns public participants ranked on best winning difficulty and win
// count combined.
func (a *API) combinedLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := a.cfg.FetchCombinedLeaderboard(limit)
	if err != nil {
		log.Errorf("unable to fetch combined leaderboard: %v", err)
		sendJSONError(w, http.StatusInternalServerError,
			"unable to fetch combined leaderboard")
		return
	}
	sendJSON(w, http.StatusOK, entries)
}

// participantWatermarks is the handler for
// "GET /api/v1/participant/{address}/watermarks". It returns the watermarks
// won by the provided address, empty for non-public participants.
func (a *API) participantWatermarks(w http.ResponseWriter, r *http.Request) {
	address, err := parseAddress(r)
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	watermarks, err := a.cfg.FetchParticipantWatermarks(address, limit)
	if err != nil {
		log.Errorf("unable to fetch participant watermarks: %v", err)
		sendJSONError(w, http.StatusInternalServerError,
			"unable to fetch participant watermarks")
		return
	}
	sendJSON(w, http.StatusOK, watermarks)
}

// participantSubmissions is the handler for
// "GET /api/v1/participant/{address}/submissions". It returns the submission
// history of the provided address, empty for non-public participants.
func (a *API) participantSubmissions(w http.ResponseWriter, r *http.Request) {
	address, err := parseAddress(r)
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	submissions, err := a.cfg.FetchParticipantSubmissions(address, limit)
	if err != nil {
		log.Errorf("unable to fetch participant submissions: %v", err)
		sendJSONError(w, http.StatusInternalServerError,
			"unable to fetch participant submissions")
		return
	}
	sendJSON(w, http.StatusOK, submissions)
}

// collectRequest represents the body of a collect trigger request.
type collectRequest struct {
	Intervals []int64 `json:"intervals"`
}

// collect is the handler for "POST /api/v1/collect". It triggers watermark
// collection for the requested intervals and returns per-interval success.
func (a *API) collect(w http.ResponseWriter, r *http.Request) {
	var req collectRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Intervals) == 0 {
		sendJSONError(w, http.StatusBadRequest,
			"no intervals provided")
		return
	}
	if len(req.Intervals) > maxTriggerIntervals {
		sendJSONError(w, http.StatusBadRequest,
			fmt.Sprintf("at most %d intervals per request",
				maxTriggerIntervals))
		return
	}
	for _, intervalID := range req.Intervals {
		if intervalID < 0 {
			sendJSONError(w, http.StatusBadRequest,
				fmt.Sprintf("invalid interval id %d", intervalID))
			return
		}
	}

	results := a.cfg.CollectIntervals(r.Context(), req.Intervals)
	sendJSON(w, http.StatusOK, results)
}
