package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/idmlkit/internal/apperr"
	"github.com/starford/idmlkit/internal/docservice"
	"github.com/starford/idmlkit/internal/document"
)

// Handler holds API route handlers.
type Handler struct {
	svc *docservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *docservice.Service) *Handler {
	return &Handler{svc: svc}
}

// pathParam returns a decoded URL parameter. Encoded slashes are kept
// encoded by the router, so nested package names arrive intact.
func pathParam(r *http.Request, key string) string {
	raw := chi.URLParam(r, key)
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ifMatch returns the If-Match header without ETag quotes.
func ifMatch(r *http.Request) string {
	return strings.Trim(r.Header.Get("If-Match"), `"`)
}

// writeError maps domain errors to HTTP statuses.
func writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorBody(codeInvalidInput, err.Error()))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody(codeNotFound, "not found"))
	case errors.Is(err, apperr.ErrUnknownID):
		writeJSON(w, http.StatusNotFound, errorBody(codeUnknownID, unwrapAbort(err).Error()))
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusPreconditionFailed, errorBody(codeConflict, "checksum mismatch"))
	case errors.Is(err, apperr.ErrDuplicateID):
		writeJSON(w, http.StatusConflict, errorBody(codeDuplicateID, unwrapAbort(err).Error()))
	case errors.Is(err, apperr.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody(codeExists, "package already exists"))
	case errors.Is(err, apperr.ErrArchiveRead):
		slog.Warn(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(codeArchive, "unreadable archive"))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody(codeInternal, "internal error"))
	}
}

// unwrapAbort strips the transaction wrapper so clients see the cause.
func unwrapAbort(err error) error {
	var ae *apperr.TransactionAbortError
	if errors.As(err, &ae) {
		return ae.Err
	}
	return err
}

// ListPackages handles GET /api/packages.
//
//	@Summary		List cataloged packages
//	@Tags			packages
//	@Produce		json
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Success		200		{object}	PackageListResponse
//	@Security		BearerAuth
//	@Router			/packages [get]
func (h *Handler) ListPackages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := h.svc.ListPackages(r.Context(), limit, offset)
	if err != nil {
		writeError(w, "list packages", err)
		return
	}
	writeJSON(w, http.StatusOK, PackageListResponse{Packages: items, Total: total})
}

// GetPackage handles GET /api/packages/{name}.
//
//	@Summary		Describe a package: layers, spreads, pages and stories
//	@Tags			packages
//	@Produce		json
//	@Param			name	path		string	true	"Package name"
//	@Success		200		{object}	PackageDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/packages/{name} [get]
func (h *Handler) GetPackage(w http.ResponseWriter, r *http.Request) {
	name := pathParam(r, "name")
	detail, err := h.svc.GetPackage(r.Context(), name)
	if err != nil {
		writeError(w, "get package", err)
		return
	}
	writeTagged(w, http.StatusOK, detail.Checksum, detail)
}

// AddTextRange handles POST /api/packages/{name}/text-ranges.
//
//	@Summary		Add a story with one tagged element, optionally framed on a page
//	@Tags			packages
//	@Accept			json
//	@Produce		json
//	@Param			name		path		string				true	"Package name"
//	@Param			If-Match	header		string				false	"Archive checksum for optimistic concurrency"
//	@Param			body		body		TextRangeRequest	true	"Text range"
//	@Success		201			{object}	TextRangeResult
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Failure		412			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/packages/{name}/text-ranges [post]
func (h *Handler) AddTextRange(w http.ResponseWriter, r *http.Request) {
	var req TextRangeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.AddTextRange(r.Context(), pathParam(r, "name"), req, ifMatch(r))
	if err != nil {
		writeError(w, "add text range", err)
		return
	}
	writeTagged(w, http.StatusCreated, res.Checksum, res)
}

// SetElementText handles PUT /api/packages/{name}/stories/{story}/elements/{element}.
//
//	@Summary		Replace the text of a tagged element
//	@Tags			packages
//	@Accept			json
//	@Produce		json
//	@Param			name		path		string					true	"Package name"
//	@Param			story		path		string					true	"Story id"
//	@Param			element		path		string					true	"Element id"
//	@Param			If-Match	header		string					false	"Archive checksum for optimistic concurrency"
//	@Param			body		body		SetElementTextRequest	true	"New text"
//	@Success		200			{object}	ElementResult
//	@Failure		404			{object}	errResponse
//	@Failure		412			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/packages/{name}/stories/{story}/elements/{element} [put]
func (h *Handler) SetElementText(w http.ResponseWriter, r *http.Request) {
	var req SetElementTextRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.SetElementText(r.Context(),
		pathParam(r, "name"), pathParam(r, "story"), pathParam(r, "element"),
		req.Text, ifMatch(r))
	if err != nil {
		writeError(w, "set element text", err)
		return
	}
	writeTagged(w, http.StatusOK, res.Checksum, res)
}

// Search handles GET /api/search.
//
//	@Summary		Search story text across packages
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody(codeInvalidInput, "query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Transactions handles GET /api/transactions.
//
//	@Summary		List journaled transactions, newest first
//	@Tags			transactions
//	@Produce		json
//	@Param			state	query		string	false	"Filter by state"	Enums(active, committed, aborted, retained, reclaimed)
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	TransactionListResponse
//	@Security		BearerAuth
//	@Router			/transactions [get]
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	rows, err := h.svc.Transactions(r.Context(), document.TxState(q.Get("state")), limit)
	if err != nil {
		writeError(w, "list transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, TransactionListResponse{Transactions: rows})
}

// Sweep handles POST /api/transactions/sweep.
//
//	@Summary		Remove working copies kept by failed transactions
//	@Tags			transactions
//	@Produce		json
//	@Success		200	{object}	SweepResponse
//	@Security		BearerAuth
//	@Router			/transactions/sweep [post]
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Sweep(r.Context())
	if err != nil {
		writeError(w, "sweep", err)
		return
	}
	writeJSON(w, http.StatusOK, SweepResponse{Reclaimed: n})
}
