package http

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/partcat/partcat/internal/connector"
	"github.com/partcat/partcat/internal/errors"
	"github.com/partcat/partcat/internal/logging"
	"github.com/partcat/partcat/pkg/types"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 8 << 20

// Catalog is the federated partition surface served by the API.
type Catalog interface {
	connector.PartitionService
	Catalogs() []string
}

// ListRequest is the body of the list, keys and uris endpoints.
type ListRequest struct {
	Request *types.GetPartitionsRequest `json:"request,omitempty"`
	Sort    *types.Sort                 `json:"sort,omitempty"`
	Page    *types.Pageable             `json:"page,omitempty"`
}

// CountResponse is returned by the count endpoint.
type CountResponse struct {
	Count int `json:"count"`
}

// DeleteRequest names the partitions to delete, as "catalog/db/table/partition".
type DeleteRequest struct {
	Names []string `json:"names"`
}

// DeleteResponse reports which partitions were deleted and which failed.
type DeleteResponse struct {
	Deleted  []string          `json:"deleted"`
	Failures []FailureResponse `json:"failures,omitempty"`
}

// FailureResponse is one failed item of a batch.
type FailureResponse struct {
	Name  string `json:"name"`
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// NamesRequest is the body of the reverse URI lookup.
type NamesRequest struct {
	URIs         []string `json:"uris"`
	PrefixSearch bool     `json:"prefixSearch,omitempty"`
}

// NamesResponse maps each URI to the partitions found there.
type NamesResponse struct {
	Names map[string][]string `json:"names"`
}

// CatalogsResponse lists the registered catalogs.
type CatalogsResponse struct {
	Catalogs     []string `json:"catalogs"`
	Capabilities []string `json:"capabilities"`
}

// PartitionHandler serves the partition endpoints.
type PartitionHandler struct {
	catalog Catalog
	log     *logrus.Entry
}

// NewPartitionHandler creates a handler over catalog.
func NewPartitionHandler(catalog Catalog, logger logrus.FieldLogger) *PartitionHandler {
	return &PartitionHandler{
		catalog: catalog,
		log:     logging.Component(logger, "http"),
	}
}

// Register adds the partition routes to mux.
func (h *PartitionHandler) Register(mux *http.ServeMux) {
	const table = "/v1/partitions/{catalog}/{database}/{table}"

	mux.HandleFunc("GET /v1/catalogs", h.listCatalogs)
	mux.HandleFunc("POST "+table+"/list", h.getPartitions)
	mux.HandleFunc("POST "+table+"/keys", h.getPartitionKeys)
	mux.HandleFunc("POST "+table+"/uris", h.getPartitionURIs)
	mux.HandleFunc("GET "+table+"/count", h.getPartitionCount)
	mux.HandleFunc("POST "+table, h.savePartitions)
	mux.HandleFunc("POST /v1/partitions/delete", h.deletePartitions)
	mux.HandleFunc("POST /v1/partitions/names", h.getPartitionNames)
}

func tableName(r *http.Request) types.QualifiedName {
	return types.NewTableName(r.PathValue("catalog"), r.PathValue("database"), r.PathValue("table"))
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, w http.ResponseWriter, v interface{}) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil && !stderrors.Is(err, io.EOF) {
		return errors.NewValidationError(errors.CodeInvalidRequest, fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}

func (h *PartitionHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		logging.WithRequest(r.Context(), h.log).
			WithError(err).
			WithField("path", r.URL.Path).
			WithField("status", status).
			Warn("request failed")
	}
	writeError(w, status, errorResponse(r, err))
}

func (h *PartitionHandler) listCatalogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, CatalogsResponse{
		Catalogs:     h.catalog.Catalogs(),
		Capabilities: h.catalog.Capabilities().Names(),
	})
}

func (h *PartitionHandler) getPartitions(w http.ResponseWriter, r *http.Request) {
	var body ListRequest
	if err := decode(r, w, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.catalog.GetPartitions(r.Context(), tableName(r), body.Request, body.Sort, body.Page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *PartitionHandler) getPartitionKeys(w http.ResponseWriter, r *http.Request) {
	var body ListRequest
	if err := decode(r, w, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.catalog.GetPartitionKeys(r.Context(), tableName(r), body.Request, body.Sort, body.Page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *PartitionHandler) getPartitionURIs(w http.ResponseWriter, r *http.Request) {
	var body ListRequest
	if err := decode(r, w, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.catalog.GetPartitionURIs(r.Context(), tableName(r), body.Request, body.Sort, body.Page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *PartitionHandler) getPartitionCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.catalog.GetPartitionCount(r.Context(), tableName(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

func (h *PartitionHandler) savePartitions(w http.ResponseWriter, r *http.Request) {
	var body types.PartitionsSaveRequest
	if err := decode(r, w, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	resp, err := h.catalog.SavePartitions(r.Context(), tableName(r), &body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *PartitionHandler) deletePartitions(w http.ResponseWriter, r *http.Request) {
	var body DeleteRequest
	if err := decode(r, w, &body); err != nil {
		h.fail(w, r, err)
		return
	}

	names := make([]types.QualifiedName, 0, len(body.Names))
	for _, s := range body.Names {
		name, err := types.ParseQualifiedName(s)
		if err != nil {
			h.fail(w, r, errors.NewValidationError(errors.CodeInvalidQualifiedName, fmt.Sprintf("invalid partition name %q", s)))
			return
		}
		names = append(names, name)
	}

	err := h.catalog.DeletePartitions(r.Context(), names)
	batch, partial := errors.AsBatchError(err)
	if err != nil && !partial {
		h.fail(w, r, err)
		return
	}

	resp := DeleteResponse{Deleted: []string{}}
	failed := make(map[string]bool)
	if partial {
		for _, f := range batch.Failures() {
			failed[f.Name] = true
			resp.Failures = append(resp.Failures, FailureResponse{
				Name:  f.Name,
				Error: f.Err.Error(),
				Code:  errors.GetCode(f.Err),
			})
		}
	}
	for _, name := range names {
		if !failed[name.String()] {
			resp.Deleted = append(resp.Deleted, name.String())
		}
	}

	status := http.StatusOK
	if partial {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, resp)
}

func (h *PartitionHandler) getPartitionNames(w http.ResponseWriter, r *http.Request) {
	var body NamesRequest
	if err := decode(r, w, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	found, err := h.catalog.GetPartitionNames(r.Context(), body.URIs, body.PrefixSearch)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := NamesResponse{Names: make(map[string][]string, len(found))}
	for uri, names := range found {
		out := make([]string, len(names))
		for i, name := range names {
			out[i] = name.String()
		}
		resp.Names[uri] = out
	}
	writeJSON(w, http.StatusOK, resp)
}
