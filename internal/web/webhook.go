package web

import (
	"encoding/json"
	"net/http"
	"regexp"
	"time"

	"github.com/fieldops/dispatchcore/lead"
	"github.com/google/uuid"
)

const maxMessageLen = 3500

var phoneDigitsRe = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

// leadWebhookPayload is the POST /webhook/lead body shape per SPEC_FULL.md §6.
type leadWebhookPayload struct {
	ExternalID    string  `json:"external_id"`
	Timestamp     string  `json:"ts"`
	Phone         string  `json:"phone"`
	Message       string  `json:"message"`
	Name          string  `json:"name"`
	Source        string  `json:"source"`
	CategoryID    string  `json:"categoryId"`
	CategoryTitle string  `json:"categoryTitle"`
	IssueTitle    string  `json:"issueTitle"`
	IP            string  `json:"ip"`
	UA            string  `json:"ua"`
}

type leadWebhookResponse struct {
	OK        bool `json:"ok"`
	Duplicate bool `json:"duplicate"`
}

// handleLeadWebhook ingests a site lead, enforcing the shared-secret header
// and phone-format validation before handing off to the lead pipeline.
func (s *Server) handleLeadWebhook(w http.ResponseWriter, r *http.Request) {
	if s.webhookSecret == "" {
		s.jsonError(w, "webhook secret not configured", http.StatusServiceUnavailable)
		return
	}
	if r.Header.Get("x-webhook-secret") != s.webhookSecret {
		s.jsonError(w, "missing or invalid secret", http.StatusUnauthorized)
		return
	}

	var payload leadWebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	externalID, err := uuid.Parse(payload.ExternalID)
	if err != nil {
		s.jsonError(w, "invalid external_id", http.StatusBadRequest)
		return
	}

	if !phoneDigitsRe.MatchString(payload.Phone) {
		s.jsonError(w, "invalid phone", http.StatusBadRequest)
		return
	}
	if payload.Message == "" {
		s.jsonError(w, "message required", http.StatusBadRequest)
		return
	}
	message := payload.Message
	if len(message) > maxMessageLen {
		message = message[:maxMessageLen]
	}

	var preferredAt *time.Time
	if payload.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339, payload.Timestamp); err == nil {
			preferredAt = &t
		}
	}

	_, duplicate, err := s.leads.Ingest(r.Context(), lead.IngestInput{
		ExternalID:  externalID,
		Source:      payload.Source,
		ClientName:  payload.Name,
		ClientPhone: payload.Phone,
		ProblemText: message,
		SpecialNote: payload.IssueTitle,
		AdSourceRaw: payload.CategoryTitle,
		PreferredAt: preferredAt,
	})
	if err != nil {
		s.logger.Error("lead ingest failed", "error", err)
		s.jsonError(w, "ingest failed", http.StatusInternalServerError)
		return
	}

	s.jsonResponse(w, leadWebhookResponse{OK: true, Duplicate: duplicate})
}
