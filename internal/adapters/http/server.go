package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"verona/internal/domain"
	"verona/internal/ports"
)

// Server exposes the engine's narrow interfaces: the published read API,
// evidence and scoring intake, and the dispute endpoints used by the
// external moderation workflow.
type Server struct {
	scoring      ports.Scoring
	evidence     ports.Evidence
	verification ports.Verification
	audit        ports.Audit
}

func New(scoring ports.Scoring, evidence ports.Evidence, verification ports.Verification, audit ports.Audit) *Server {
	return &Server{scoring: scoring, evidence: evidence, verification: verification, audit: audit}
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/v1", func(r chi.Router) {
		r.Post("/evidence/{id}/review", s.reviewEvidence)
		r.Route("/entities/{slug}", func(r chi.Router) {
			r.Post("/evidence", s.submitEvidence)
			r.Get("/evidence-summary", s.evidenceSummary)
			r.Post("/score-runs", s.computeScore)
			r.Get("/score-runs/current", s.currentRun)
			r.Post("/attestations", s.resolveAttestation)
			r.Get("/attestations/current", s.currentAttestation)
			r.Get("/audit", s.auditHistory)
			r.Post("/disputes", s.raiseDispute)
			r.Delete("/disputes", s.clearDispute)
		})
	})
	return r
}

type submitEvidenceRequest struct {
	Type             string     `json:"type"`
	FileRef          string     `json:"file_ref"`
	FileName         string     `json:"file_name"`
	FileSize         int64      `json:"file_size"`
	DocumentNumber   string     `json:"document_number"`
	IssuingAuthority string     `json:"issuing_authority"`
	ExpiresAt        *time.Time `json:"expires_at"`
}

type evidenceResponse struct {
	ID               string     `json:"id"`
	AssetID          string     `json:"asset_id"`
	Slug             string     `json:"slug"`
	Type             string     `json:"type"`
	Category         string     `json:"category"`
	FileRef          string     `json:"file_ref"`
	FileName         string     `json:"file_name,omitempty"`
	FileSize         int64      `json:"file_size,omitempty"`
	DocumentNumber   string     `json:"document_number,omitempty"`
	IssuingAuthority string     `json:"issuing_authority,omitempty"`
	Status           string     `json:"status"`
	ReviewerID       string     `json:"reviewer_id,omitempty"`
	UploadedAt       time.Time  `json:"uploaded_at"`
	VerifiedAt       *time.Time `json:"verified_at,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
}

func toEvidenceResponse(ev domain.Evidence) evidenceResponse {
	return evidenceResponse{
		ID:               ev.ID,
		AssetID:          ev.AssetID,
		Slug:             ev.Slug,
		Type:             ev.Type,
		Category:         ev.Category,
		FileRef:          ev.FileRef,
		FileName:         ev.FileName,
		FileSize:         ev.FileSize,
		DocumentNumber:   ev.DocumentNumber,
		IssuingAuthority: ev.IssuingAuthority,
		Status:           string(ev.Status),
		ReviewerID:       ev.ReviewerID,
		UploadedAt:       ev.UploadedAt,
		VerifiedAt:       ev.VerifiedAt,
		ExpiresAt:        ev.ExpiresAt,
	}
}

func (s *Server) submitEvidence(w http.ResponseWriter, r *http.Request) {
	var req submitEvidenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	ev, err := s.evidence.Submit(r.Context(), chi.URLParam(r, "slug"), domain.EvidenceSubmission{
		Type:             req.Type,
		FileRef:          req.FileRef,
		FileName:         req.FileName,
		FileSize:         req.FileSize,
		DocumentNumber:   req.DocumentNumber,
		IssuingAuthority: req.IssuingAuthority,
		ExpiresAt:        req.ExpiresAt,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEvidenceResponse(ev))
}

type reviewRequest struct {
	Outcome    string `json:"outcome"`
	ReviewerID string `json:"reviewer_id"`
}

func (s *Server) reviewEvidence(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	ev, err := s.evidence.Review(r.Context(), chi.URLParam(r, "id"), domain.EvidenceStatus(req.Outcome), req.ReviewerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEvidenceResponse(ev))
}

func (s *Server) evidenceSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.evidence.Summarize(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type computeScoreRequest struct {
	MethodologyVersion string `json:"methodology_version"`
	Inputs             []struct {
		Name         string          `json:"name"`
		SubScore     decimal.Decimal `json:"sub_score"`
		EvidenceRefs []string        `json:"evidence_refs"`
	} `json:"inputs"`
}

type scoreRunResponse struct {
	ID                 string                  `json:"id"`
	AssetID            string                  `json:"asset_id"`
	Slug               string                  `json:"slug"`
	MethodologyVersion string                  `json:"methodology_version"`
	Inputs             []domain.ComponentInput `json:"inputs"`
	Composite          decimal.Decimal         `json:"composite"`
	Grade              string                  `json:"grade"`
	Diff               *domain.ScoreDiff       `json:"diff,omitempty"`
	AnchorStatus       string                  `json:"anchor_status"`
	AnchorRef          string                  `json:"anchor_ref,omitempty"`
	CreatedAt          time.Time               `json:"created_at"`
}

func toScoreRunResponse(run domain.ScoreRun) scoreRunResponse {
	return scoreRunResponse{
		ID:                 run.ID,
		AssetID:            run.AssetID,
		Slug:               run.Slug,
		MethodologyVersion: run.MethodologyVersion,
		Inputs:             run.Inputs,
		Composite:          run.Composite,
		Grade:              string(run.Grade),
		Diff:               run.Diff,
		AnchorStatus:       string(run.AnchorStatus),
		AnchorRef:          run.AnchorRef,
		CreatedAt:          run.CreatedAt,
	}
}

func (s *Server) computeScore(w http.ResponseWriter, r *http.Request) {
	var req computeScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	inputs := make([]domain.ComponentInput, 0, len(req.Inputs))
	for _, in := range req.Inputs {
		inputs = append(inputs, domain.ComponentInput{Name: in.Name, SubScore: in.SubScore, EvidenceRefs: in.EvidenceRefs})
	}
	run, err := s.scoring.Compute(r.Context(), chi.URLParam(r, "slug"), req.MethodologyVersion, inputs)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toScoreRunResponse(run))
}

func (s *Server) currentRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.scoring.CurrentRun(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toScoreRunResponse(run))
}

type attestationResponse struct {
	ID           string               `json:"id"`
	AssetID      string               `json:"asset_id"`
	Slug         string               `json:"slug"`
	Tier         int                  `json:"tier"`
	Checks       []domain.CheckResult `json:"checks"`
	Disputed     bool                 `json:"disputed"`
	ValidFrom    time.Time            `json:"valid_from"`
	ValidUntil   time.Time            `json:"valid_until"`
	AnchorStatus string               `json:"anchor_status"`
	AnchorRef    string               `json:"anchor_ref,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
}

func toAttestationResponse(att domain.Attestation) attestationResponse {
	return attestationResponse{
		ID:           att.ID,
		AssetID:      att.AssetID,
		Slug:         att.Slug,
		Tier:         int(att.Tier),
		Checks:       att.Checks,
		Disputed:     att.Disputed,
		ValidFrom:    att.ValidFrom,
		ValidUntil:   att.ValidUntil,
		AnchorStatus: string(att.AnchorStatus),
		AnchorRef:    att.AnchorRef,
		CreatedAt:    att.CreatedAt,
	}
}

func (s *Server) resolveAttestation(w http.ResponseWriter, r *http.Request) {
	att, err := s.verification.Resolve(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAttestationResponse(att))
}

func (s *Server) currentAttestation(w http.ResponseWriter, r *http.Request) {
	att, err := s.verification.CurrentAttestation(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAttestationResponse(att))
}

type auditEntryResponse struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	RecordID    string          `json:"record_id"`
	ContentHash string          `json:"content_hash"`
	Detail      json.RawMessage `json:"detail,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (s *Server) auditHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.audit.History(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditEntryResponse{
			ID:          e.ID,
			Kind:        string(e.Kind),
			RecordID:    e.RecordID,
			ContentHash: e.ContentHash,
			Detail:      e.Detail,
			CreatedAt:   e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type disputeRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) raiseDispute(w http.ResponseWriter, r *http.Request) {
	var req disputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Reason == "" {
		writeError(w, http.StatusBadRequest, "reason is required")
		return
	}
	if err := s.verification.RaiseDispute(r.Context(), chi.URLParam(r, "slug"), req.Reason); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "disputed"})
}

func (s *Server) clearDispute(w http.ResponseWriter, r *http.Request) {
	if err := s.verification.ClearDispute(r.Context(), chi.URLParam(r, "slug")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cleared"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encoding failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrUnknownComponent),
		errors.Is(err, domain.ErrMissingComponent),
		errors.Is(err, domain.ErrSubScoreOutOfRange),
		errors.Is(err, domain.ErrUnknownEvidenceType),
		errors.Is(err, domain.ErrInvalidMethodology):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
