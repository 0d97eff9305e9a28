package api

import (
	"net/http"

	"github.com/BTreeMap/CampusCare/internal/models"
	"github.com/gorilla/mux"
)

// InstrumentList is the body of GET /instruments.
type InstrumentList struct {
	Version     string              `json:"version"`
	Instruments []models.Instrument `json:"instruments"`
}

// SummaryResponse is the body of GET /sessions/{id}/summary.
type SummaryResponse struct {
	SessionID      string `json:"session_id"`
	ContextSummary string `json:"context_summary"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	snap := s.svc.Registry().Current()
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{
		"catalog_version": snap.Catalog.Version(),
		"lexicon_version": snap.Lexicon.Version(),
	}))
}

func (s *Server) listInstrumentsHandler(w http.ResponseWriter, r *http.Request) {
	cat := s.svc.Registry().Catalog()
	writeJSONResponse(w, http.StatusOK, models.Success(InstrumentList{
		Version:     cat.Version(),
		Instruments: cat.List(),
	}))
}

func (s *Server) getInstrumentHandler(w http.ResponseWriter, r *http.Request) {
	inst, err := s.svc.Registry().Catalog().Get(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, "getInstrumentHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(inst))
}

func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	sess, err := s.svc.CreateSession(r.Context(), req.UserID)
	if err != nil {
		writeError(w, "createSessionHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Session created", sess))
}

func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.GetSession(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, "getSessionHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(view))
}

const persistencePendingMessage = "Saved for retry, storage is temporarily unavailable"

func (s *Server) submitScreeningHandler(w http.ResponseWriter, r *http.Request) {
	var req ScreeningRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	out, err := s.svc.SubmitScreening(r.Context(), mux.Vars(r)["id"], req.InstrumentID, req.Responses)
	if err != nil {
		writeError(w, "submitScreeningHandler", err)
		return
	}
	if out.PersistencePending {
		writeJSONResponse(w, http.StatusCreated, models.Degraded(persistencePendingMessage, out))
		return
	}
	writeJSONResponse(w, http.StatusCreated, models.Success(out))
}

func (s *Server) submitMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	out, err := s.svc.SubmitMessage(r.Context(), mux.Vars(r)["id"], req.Text, req.Language)
	if err != nil {
		writeError(w, "submitMessageHandler", err)
		return
	}
	switch {
	case out.Degraded:
		writeJSONResponse(w, http.StatusOK, models.Degraded("Support assistant unavailable, fallback response returned", out))
		return
	case out.PersistencePending:
		writeJSONResponse(w, http.StatusOK, models.Degraded(persistencePendingMessage, out))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(out))
}

func (s *Server) summaryHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	summary, err := s.svc.Summary(r.Context(), id)
	if err != nil {
		writeError(w, "summaryHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(SummaryResponse{SessionID: id, ContextSummary: summary}))
}

func (s *Server) shareHandler(w http.ResponseWriter, r *http.Request) {
	share, err := s.svc.ShareWithCounsellor(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, "shareHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Conversation shared with counselling team", share))
}

func (s *Server) listSharesHandler(w http.ResponseWriter, r *http.Request) {
	shares, err := s.svc.ListShares(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, "listSharesHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(shares))
}
