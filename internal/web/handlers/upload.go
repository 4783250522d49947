package handlers

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/kozaktomas/face-identity/internal/constants"
	"github.com/kozaktomas/face-identity/internal/facematch"
	"github.com/kozaktomas/face-identity/internal/resolver"
)

// readUploadedFiles reads multipart files into memory.
func readUploadedFiles(files []*multipart.FileHeader) ([]resolver.Upload, error) {
	uploads := make([]resolver.Upload, 0, len(files))
	for _, fileHeader := range files {
		if err := func() error {
			file, err := fileHeader.Open()
			if err != nil {
				return fmt.Errorf("failed to open file: %s", sanitizeForLog(fileHeader.Filename))
			}
			defer file.Close()

			data, err := io.ReadAll(file)
			if err != nil {
				return fmt.Errorf("failed to read file: %s", sanitizeForLog(fileHeader.Filename))
			}
			uploads = append(uploads, resolver.Upload{Ref: filepath.Base(fileHeader.Filename), Data: data})
			return nil
		}(); err != nil {
			return nil, err
		}
	}
	return uploads, nil
}

// Upload detects and resolves faces in uploaded images
func (h *ResolveHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "no files provided")
		return
	}
	if len(files) > constants.MaxImagesPerRequest {
		respondError(w, http.StatusBadRequest,
			fmt.Sprintf("too many images: %d (max %d)", len(files), constants.MaxImagesPerRequest))
		return
	}

	persist, _ := strconv.ParseBool(r.FormValue("persist"))

	uploads, err := readUploadedFiles(files)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	reports, err := h.service.ResolveUploads(r.Context(), r.FormValue("owner"), uploads, resolver.ResolveOptions{
		Order:   facematch.ParseOrder(r.FormValue("order")),
		Persist: persist,
	})
	if err != nil {
		respondServiceError(w, err, "resolve uploads")
		return
	}

	respondJSON(w, http.StatusOK, ResolveResponse{
		Results: reports,
		Summary: resolver.Summarize(reports),
	})
}
