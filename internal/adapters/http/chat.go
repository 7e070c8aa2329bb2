package httpapi

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Fikei1151/nia/internal/app/dto"
	"github.com/Fikei1151/nia/pkg/validation"
)

type chatHandler struct {
	chat   ChatProcessor
	logger *slog.Logger
}

type threadPath struct {
	ThreadID string `json:"thread_id" validate:"required,thread_ref"`
}

// chat handles POST /api/v1/chat/{thread_id}. The keyword "new" starts a
// thread under a generated id.
func (h *chatHandler) chat(w http.ResponseWriter, r *http.Request) {
	path := threadPath{ThreadID: chi.URLParam(r, "thread_id")}
	if err := validation.ValidateStruct(&path); err != nil {
		validation.WriteError(w, err)
		return
	}

	var req dto.ChatRequest
	if err := validation.DecodeJSON(r, &req); err != nil {
		validation.WriteError(w, err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		validation.WriteError(w, validation.ValidationError{Field: "message", Message: dto.ErrEmptyMessage.Error()})
		return
	}

	threadID, fresh := resolveThreadID(path.ThreadID)
	if fresh {
		h.logger.DebugContext(r.Context(), "starting new thread", slog.String("thread_id", threadID))
	}

	reply := h.chat.Process(r.Context(), threadID, req)
	writeJSON(w, http.StatusOK, dto.ChatResponse{Reply: reply, ThreadID: threadID})
}

// resolveThreadID returns the canonical thread id and whether it was
// generated.
func resolveThreadID(ref string) (string, bool) {
	if strings.EqualFold(ref, validation.NewThreadKeyword) {
		return uuid.NewString(), true
	}
	return uuid.MustParse(ref).String(), false
}
