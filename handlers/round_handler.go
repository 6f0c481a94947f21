package handlers

import (
	"net/http"

	"github.com/openbracket/tournament-engine/services"
)

type RoundHandler struct {
	roundService services.RoundService
	matchService services.MatchService
}

func NewRoundHandler(roundService services.RoundService, matchService services.MatchService) *RoundHandler {
	return &RoundHandler{
		roundService: roundService,
		matchService: matchService,
	}
}

// Prepare generates the next round's pairings as an uncommitted preview.
func (h *RoundHandler) Prepare(w http.ResponseWriter, r *http.Request) {
	phaseID, err := urlParamInt(r, "phaseID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	preview, err := h.roundService.PrepareRound(r.Context(), phaseID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"preview": preview}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *RoundHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	roundID, err := urlParamInt(r, "roundID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.roundService.ConfirmAndStartRound(r.Context(), roundID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"status": "started"}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *RoundHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	roundID, err := urlParamInt(r, "roundID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.roundService.CancelPreparedRound(r.Context(), roundID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *RoundHandler) Complete(w http.ResponseWriter, r *http.Request) {
	roundID, err := urlParamInt(r, "roundID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.roundService.CompleteRound(r.Context(), roundID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"status": "completed"}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// State reports the derived round state of a phase, overlaid with any
// in-flight transition owned by this process.
func (h *RoundHandler) State(w http.ResponseWriter, r *http.Request) {
	phaseID, err := urlParamInt(r, "phaseID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	snapshot, err := h.roundService.PhaseState(r.Context(), phaseID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"state": snapshot}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *RoundHandler) ListMatches(w http.ResponseWriter, r *http.Request) {
	roundID, err := urlParamInt(r, "roundID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	matches, err := h.matchService.ListByRound(r.Context(), roundID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"matches": matches}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *RoundHandler) StartMatch(w http.ResponseWriter, r *http.Request) {
	matchID, err := urlParamInt(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.matchService.StartMatch(r.Context(), matchID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"status": "started"}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *RoundHandler) ReportResult(w http.ResponseWriter, r *http.Request) {
	matchID, err := urlParamInt(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		// Nil winner records a draw.
		WinnerRegistrationID *int `json:"winner_registration_id"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.matchService.ReportResult(r.Context(), matchID, input.WinnerRegistrationID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"status": "recorded"}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
