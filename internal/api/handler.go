package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"questionbank/internal/files"
	"questionbank/internal/logging"
	"questionbank/internal/questions"
	"questionbank/internal/store"
)

// uploadFormOverhead is slack added to the request body cap on top of the
// blob size ceiling, covering multipart boundaries and part headers.
const uploadFormOverhead = 1 << 20

// Handler handles HTTP requests.
type Handler struct {
	questions *questions.Service
	files     *files.Store
	apiKey    string
	baseURL   string
	started   time.Time
	mux       *http.ServeMux
}

// NewHandler creates a new HTTP handler. baseURL prefixes the URLs
// returned in create and upload responses; empty means relative URLs.
func NewHandler(q *questions.Service, f *files.Store, apiKey, baseURL string) *Handler {
	h := &Handler{
		questions: q,
		files:     f,
		apiKey:    apiKey,
		baseURL:   baseURL,
		started:   time.Now(),
		mux:       http.NewServeMux(),
	}
	h.registerRoutes()
	return h
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /health", h.handleHealth)

	h.mux.HandleFunc("GET /questions", h.handleListQuestions)
	h.mux.HandleFunc("GET /questions/{id}", h.handleGetQuestion)
	// "/questions/slug/{slug}" and "/questions/{id}/testcases" overlap for
	// the pattern matcher, so one route serves both two-segment lookups.
	h.mux.HandleFunc("GET /questions/{a}/{b}", h.handleQuestionLookup)
	h.mux.HandleFunc("POST /questions", h.requireKey(h.handleCreateQuestion))
	h.mux.HandleFunc("POST /questions/bulk", h.requireKey(h.handleBulkImport))
	h.mux.HandleFunc("PUT /questions/{id}", h.requireKey(h.handleUpdateQuestion))
	h.mux.HandleFunc("DELETE /questions/{id}", h.requireKey(h.handleDeleteQuestion))

	h.mux.HandleFunc("POST /files/{folder}", h.requireKey(h.handleUploadFile))
	h.mux.HandleFunc("GET /files/{folder}", h.requireKey(h.handleListFiles))
	h.mux.HandleFunc("GET /files/{folder}/{filename}", h.requireKey(h.handleServeFile))
	h.mux.HandleFunc("DELETE /files/{folder}/{filename}", h.requireKey(h.handleDeleteFile))
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// requireKey guards a route with the shared API key, accepted from the
// X-API-Key header or the apiKey query parameter. An unset server key
// matches nothing.
func (h *Handler) requireKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if key == "" {
			key = r.URL.Query().Get("apiKey")
		}
		if h.apiKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.apiKey)) != 1 {
			h.writeError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}
		next(w, r)
	}
}

// Response envelopes. Every JSON body carries a success flag except the
// health check, whose shape is fixed by its consumers.

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// ListResponse wraps collection results.
type ListResponse struct {
	Success bool `json:"success"`
	Count   int  `json:"count"`
	Data    any  `json:"data"`
}

// DataResponse wraps single-resource results.
type DataResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// BulkResponse reports bulk import counts. Failed only appears when a
// record hit a write error, which also fails the whole call.
type BulkResponse struct {
	Success bool   `json:"success"`
	Created int    `json:"created"`
	Skipped int    `json:"skipped"`
	Failed  int    `json:"failed,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse is the health check body.
type HealthResponse struct {
	Status         string  `json:"status"`
	Timestamp      string  `json:"timestamp"`
	QuestionsCount int     `json:"questionsCount"`
	Uptime         float64 `json:"uptime"`
}

// QuestionCreatedData is the data payload of a successful create.
type QuestionCreatedData struct {
	ID          string `json:"_id"`
	QuestionURL string `json:"questionUrl"`
}

// UploadedFileData is the data payload of a successful upload.
type UploadedFileData struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Folder   string `json:"folder"`
	Size     int64  `json:"size"`
	Mimetype string `json:"mimetype"`
}

// FileEntry is one stored file in a folder listing.
type FileEntry struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.HTTP.Printf("failed to encode response: %v", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, ErrorResponse{Success: false, Error: msg})
}

// respondError maps domain errors to status codes per the error taxonomy.
// Anything unrecognized is an internal error: logged in full, returned
// generic.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "question not found")
	case errors.Is(err, store.ErrExists):
		h.writeError(w, http.StatusConflict, "a question with this id already exists")
	case errors.Is(err, store.ErrInvalidID):
		h.writeError(w, http.StatusBadRequest, "invalid question id")
	case errors.Is(err, files.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "file not found")
	case errors.Is(err, files.ErrInvalidBucket):
		h.writeError(w, http.StatusBadRequest, "invalid folder")
	case errors.Is(err, files.ErrInvalidName):
		h.writeError(w, http.StatusBadRequest, "invalid file name")
	case errors.Is(err, files.ErrUnsupportedType):
		h.writeError(w, http.StatusBadRequest, "unsupported file type for this folder")
	case errors.Is(err, files.ErrTooLarge):
		h.writeError(w, http.StatusBadRequest, "file too large (max 5 MiB)")
	default:
		logging.Internal.Printf("internal error: %v", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) questionURL(id string) string {
	return h.baseURL + "/questions/" + id
}

func (h *Handler) fileURL(folder, name string) string {
	return h.baseURL + "/files/" + folder + "/" + name
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	count, err := h.questions.Count(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, HealthResponse{
		Status:         "ok",
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		QuestionsCount: count,
		Uptime:         time.Since(h.started).Seconds(),
	})
}

func (h *Handler) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.questions.ListSummaries(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, ListResponse{Success: true, Count: len(summaries), Data: summaries})
}

func (h *Handler) handleGetQuestion(w http.ResponseWriter, r *http.Request) {
	doc, err := h.questions.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, DataResponse{Success: true, Data: doc})
}

// handleQuestionLookup serves GET /questions/slug/{slug} and
// GET /questions/{id}/testcases, dispatching on the path segments.
func (h *Handler) handleQuestionLookup(w http.ResponseWriter, r *http.Request) {
	a, b := r.PathValue("a"), r.PathValue("b")
	switch {
	case a == "slug":
		doc, err := h.questions.GetBySlug(r.Context(), b)
		if err != nil {
			h.respondError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, DataResponse{Success: true, Data: doc})

	case b == "testcases":
		out, err := h.questions.GetTestCases(r.Context(), a)
		if err != nil {
			h.respondError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, DataResponse{Success: true, Data: out})

	default:
		h.writeError(w, http.StatusNotFound, "not found")
	}
}

func (h *Handler) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	var doc store.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.questions.Create(r.Context(), doc)
	if err != nil {
		h.respondError(w, err)
		return
	}

	id := created.Str(store.FieldID)
	h.writeJSON(w, http.StatusCreated, DataResponse{
		Success: true,
		Message: "Question created successfully",
		Data:    QuestionCreatedData{ID: id, QuestionURL: h.questionURL(id)},
	})
}

func (h *Handler) handleUpdateQuestion(w http.ResponseWriter, r *http.Request) {
	var patch store.Document
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	merged, err := h.questions.Update(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, DataResponse{
		Success: true,
		Message: "Question updated successfully",
		Data:    merged,
	})
}

func (h *Handler) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	if err := h.questions.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.respondError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, DataResponse{Success: true, Message: "Question deleted successfully"})
}

func (h *Handler) handleBulkImport(w http.ResponseWriter, r *http.Request) {
	var docs []store.Document
	if err := json.NewDecoder(r.Body).Decode(&docs); err != nil {
		h.writeError(w, http.StatusBadRequest, "request body must be an array of questions")
		return
	}
	// A JSON null decodes into a nil slice without error; it is not an array.
	if docs == nil {
		h.writeError(w, http.StatusBadRequest, "request body must be an array of questions")
		return
	}

	res, err := h.questions.BulkImport(r.Context(), docs)
	if err != nil {
		logging.Internal.Printf("bulk import: %v", err)
		h.writeJSON(w, http.StatusInternalServerError, BulkResponse{
			Created: res.Created,
			Skipped: res.Skipped,
			Failed:  res.Failed,
			Error:   "some questions failed to import",
		})
		return
	}

	h.writeJSON(w, http.StatusOK, BulkResponse{Success: true, Created: res.Created, Skipped: res.Skipped})
}

func (h *Handler) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	folder := r.PathValue("folder")

	r.Body = http.MaxBytesReader(w, r.Body, files.MaxBlobSize+uploadFormOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.respondError(w, files.ErrTooLarge)
			return
		}
		h.writeError(w, http.StatusBadRequest, `multipart form with a "file" field is required`)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType, err = sniffContentType(file)
		if err != nil {
			h.respondError(w, err)
			return
		}
	}

	blob, err := h.files.Put(r.Context(), folder, contentType, file, header.Filename)
	if err != nil {
		h.respondError(w, err)
		return
	}

	logging.Files.Printf("stored %s/%s (%d bytes, %s)", folder, blob.Name, blob.Size, blob.ContentType)
	h.writeJSON(w, http.StatusCreated, DataResponse{
		Success: true,
		Data: UploadedFileData{
			URL:      h.fileURL(folder, blob.Name),
			Filename: blob.Name,
			Folder:   folder,
			Size:     blob.Size,
			Mimetype: blob.ContentType,
		},
	})
}

// sniffContentType detects the content type from the first bytes of an
// upload whose part carried no Content-Type header, then rewinds.
func sniffContentType(f multipart.File) (string, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return http.DetectContentType(head[:n]), nil
}

func (h *Handler) handleServeFile(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")

	f, modTime, err := h.files.Open(r.Context(), r.PathValue("folder"), name)
	if err != nil {
		h.respondError(w, err)
		return
	}
	defer f.Close()

	// ServeContent picks the Content-Type from the stored extension and
	// handles HEAD and Range requests.
	http.ServeContent(w, r, name, modTime, f)
}

func (h *Handler) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	if err := h.files.Delete(r.Context(), r.PathValue("folder"), r.PathValue("filename")); err != nil {
		h.respondError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, DataResponse{Success: true, Message: "File deleted successfully"})
}

func (h *Handler) handleListFiles(w http.ResponseWriter, r *http.Request) {
	folder := r.PathValue("folder")

	blobs, err := h.files.List(r.Context(), folder)
	if err != nil {
		h.respondError(w, err)
		return
	}

	entries := make([]FileEntry, 0, len(blobs))
	for _, b := range blobs {
		entries = append(entries, FileEntry{
			Filename: b.Name,
			URL:      h.fileURL(folder, b.Name),
			Size:     b.Size,
		})
	}

	h.writeJSON(w, http.StatusOK, ListResponse{Success: true, Count: len(entries), Data: entries})
}
