package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Andytreusch1028/LegalOps-v1-sub000/internal/models"
	"github.com/Andytreusch1028/LegalOps-v1-sub000/internal/repository"
	apperrors "github.com/Andytreusch1028/LegalOps-v1-sub000/pkg/errors"
	"github.com/gorilla/mux"
)

// PaginationResponse is one page of dead letter messages
type PaginationResponse struct {
	Items    []*models.DeadLetterMessage `json:"items"`
	Page     int                         `json:"page"`
	PageSize int                         `json:"pageSize"`
	Status   models.DeadLetterStatus     `json:"status"`
}

// getDeadLettersHandler returns a list of dead letter messages
func (s *Server) getDeadLettersHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page, err := strconv.Atoi(query.Get("page"))
	if err != nil || page < 1 {
		page = 1
	}

	pageSize, err := strconv.Atoi(query.Get("pageSize"))
	if err != nil || pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}

	status := models.DeadLetterStatus(query.Get("status"))
	switch status {
	case "":
		status = models.DeadLetterStatusPending
	case models.DeadLetterStatusPending, models.DeadLetterStatusRequeued, models.DeadLetterStatusDiscarded:
	default:
		s.respondWithError(w, apperrors.NewValidationError("unknown dead letter status").
			WithContext("status", status))
		return
	}

	messages, err := s.deadLetters.List(r.Context(), status, pageSize, (page-1)*pageSize)
	if err != nil {
		s.logger.Error("Failed to fetch dead letter messages", "error", err)
		s.respondWithError(w, apperrors.NewInternalError("failed to fetch dead letter messages"))
		return
	}

	if messages == nil {
		messages = []*models.DeadLetterMessage{}
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: PaginationResponse{
			Items:    messages,
			Page:     page,
			PageSize: pageSize,
			Status:   status,
		},
	})
}

// retryDeadLetterHandler copies a pending dead letter back into the outbox
func (s *Server) retryDeadLetterHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.deadLetterID(w, r)
	if !ok {
		return
	}

	message, err := s.deadLetters.Requeue(r.Context(), id)
	if err != nil {
		s.respondWithDeadLetterError(w, id, "requeue", err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]interface{}{
			"id":       id,
			"outboxId": message.ID,
			"status":   models.DeadLetterStatusRequeued,
		},
	})
}

// discardDeadLetterHandler drops a pending dead letter for good
func (s *Server) discardDeadLetterHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.deadLetterID(w, r)
	if !ok {
		return
	}

	if err := s.deadLetters.Discard(r.Context(), id); err != nil {
		s.respondWithDeadLetterError(w, id, "discard", err)
		return
	}

	s.logger.Info("Dead letter discarded", "messageID", id)

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]interface{}{
			"id":     id,
			"status": models.DeadLetterStatusDiscarded,
		},
	})
}

func (s *Server) deadLetterID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := mux.Vars(r)["id"]

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		s.respondWithError(w, apperrors.NewValidationError("invalid message id").WithContext("id", raw))
		return 0, false
	}
	return id, true
}

func (s *Server) respondWithDeadLetterError(w http.ResponseWriter, id int64, action string, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		s.respondWithError(w, apperrors.NewAppError(apperrors.ErrNotFound, apperrors.CodeDeadLetterNotFound,
			"no pending dead letter message with this id", http.StatusNotFound, false).
			WithContext("id", id))
		return
	}

	s.logger.Error("Failed to "+action+" dead letter message", "error", err, "messageID", id)
	s.respondWithError(w, apperrors.NewInternalError("failed to "+action+" dead letter message"))
}
