package handlers

import (
	"net/http"

	"github.com/invoiceflow/invoiceflow/internal/storage"
)

type UploadHandler struct {
	objects storage.Storage
}

func NewUploadHandler(objects storage.Storage) *UploadHandler {
	return &UploadHandler{objects: objects}
}

type uploadURLRequest struct {
	FileName    string `json:"file_name" validate:"required"`
	FileSize    int64  `json:"file_size" validate:"required,gt=0"`
	ContentType string `json:"content_type" validate:"required"`
}

// RequestURL issues a short-lived write URL the client uploads directly to.
func (h *UploadHandler) RequestURL(w http.ResponseWriter, r *http.Request) {
	var req uploadURLRequest
	if err := decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ticket, err := h.objects.RequestUploadURL(r.Context(), req.FileName, req.FileSize, req.ContentType)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, ticket)
}
