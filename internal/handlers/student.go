package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/VallejoLeonardo/alumnosb/internal/services"
	"github.com/VallejoLeonardo/alumnosb/internal/storage"
	"github.com/VallejoLeonardo/alumnosb/internal/store"
	"github.com/VallejoLeonardo/alumnosb/types"
)

const (
	maxPhotoBytes  = 5 << 20
	photoKeyPrefix = "photos/"
	photoFormField = "photo"
)

// StudentHandler provides HTTP handlers for the student directory.
type StudentHandler struct {
	students *services.StudentService
	photos   *storage.Storage
}

// NewStudentHandler constructs a handler. photos may be nil when no object
// storage is configured.
func NewStudentHandler(students *services.StudentService, photos *storage.Storage) *StudentHandler {
	return &StudentHandler{students: students, photos: photos}
}

// StudentRouter registers student directory routes on the given router.
// The caller is expected to have applied the auth middleware already.
func StudentRouter(r chi.Router, students *services.StudentService, photos *storage.Storage) {
	handler := NewStudentHandler(students, photos)

	r.Get("/", handler.List)
	if photos != nil {
		r.Put("/me/photo", handler.UploadPhoto)
		r.Get("/{matricula}/photo", handler.GetPhoto)
	}
	r.Get("/{matricula}", handler.Get)
	r.Put("/{matricula}", handler.Update)
	r.Delete("/{matricula}", handler.Delete)
}

type StudentListResponse struct {
	Status     int              `json:"status"`
	Students   []types.Student  `json:"students"`
	Pagination types.Pagination `json:"pagination"`
}

type StudentResponse struct {
	Status  int           `json:"status"`
	Student types.Student `json:"student"`
}

type UpdateStudentRequest struct {
	types.Student
	// Password, when present, replaces the stored credential.
	Password string `json:"password"`
}

func (h *StudentHandler) List(w http.ResponseWriter, r *http.Request) {
	page, pageSize, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	search := strings.TrimSpace(r.URL.Query().Get("search"))

	students, total, err := h.students.List(r.Context(), search, offset, pageSize)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list students")
		return
	}

	writeJSON(w, http.StatusOK, StudentListResponse{
		Status:     http.StatusOK,
		Students:   students,
		Pagination: buildPagination(page, pageSize, total),
	})
}

func (h *StudentHandler) Get(w http.ResponseWriter, r *http.Request) {
	matricula := strings.TrimSpace(chi.URLParam(r, "matricula"))
	if matricula == "" {
		writeError(w, http.StatusBadRequest, "matricula is required")
		return
	}

	student, err := h.students.GetByMatricula(r.Context(), matricula)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "student not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch student")
		return
	}

	writeJSON(w, http.StatusOK, StudentResponse{Status: http.StatusOK, Student: student})
}

// Update modifies the caller's own record. Supplying a password re-hashes
// the credential; omitting it keeps the stored hash.
func (h *StudentHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "access token required")
		return
	}

	matricula := strings.TrimSpace(chi.URLParam(r, "matricula"))
	if matricula != claims.StudentID {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	var req UpdateStudentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	current, err := h.students.GetByMatricula(r.Context(), matricula)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "student not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch student")
		return
	}

	student := req.Student
	student.Matricula = matricula
	student.PasswordHash = current.PasswordHash
	if req.Password != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to update student")
			return
		}
		student.PasswordHash = string(hashed)
	}

	updated, err := h.students.Update(r.Context(), student)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "student not found")
			return
		}
		if errors.Is(err, store.ErrDuplicate) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update student")
		return
	}

	writeJSON(w, http.StatusOK, StudentResponse{Status: http.StatusOK, Student: updated})
}

// Delete removes the caller's own record.
func (h *StudentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "access token required")
		return
	}

	matricula := strings.TrimSpace(chi.URLParam(r, "matricula"))
	if matricula != claims.StudentID {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	if err := h.students.Delete(r.Context(), matricula); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "student not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete student")
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{Status: http.StatusOK, Message: "student deleted"})
}

// UploadPhoto stores the caller's profile photo in the configured object
// storage backend.
func (h *StudentHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "access token required")
		return
	}

	if err := r.ParseMultipartForm(maxPhotoBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile(photoFormField)
	if err != nil {
		writeError(w, http.StatusBadRequest, "photo file is required")
		return
	}
	defer file.Close()

	if header.Size > maxPhotoBytes {
		writeError(w, http.StatusBadRequest, "photo too large")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := photoKeyPrefix + claims.StudentID
	if err := h.photos.Put(r.Context(), key, file, header.Size, contentType); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store photo")
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{Status: http.StatusOK, Message: "photo uploaded"})
}

// GetPhoto streams a student's profile photo from object storage.
func (h *StudentHandler) GetPhoto(w http.ResponseWriter, r *http.Request) {
	matricula := strings.TrimSpace(chi.URLParam(r, "matricula"))
	if matricula == "" {
		writeError(w, http.StatusBadRequest, "matricula is required")
		return
	}

	reader, err := h.photos.Get(r.Context(), photoKeyPrefix+matricula)
	if err != nil {
		writeError(w, http.StatusNotFound, "photo not found")
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, reader); err != nil {
		return
	}
}
