// Copyright (c) 2026 DLMS. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package reader

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/dlms/internal/platform/apperr"
	requestutil "github.com/taibuivan/dlms/internal/platform/request"
	"github.com/taibuivan/dlms/internal/platform/respond"
	"github.com/taibuivan/dlms/internal/platform/validate"
)

// # Definitions & Constructors

// Resolver returns the reader store of the workspace serving request.
type Resolver func(request *http.Request) *Store

// Handler implements the reader endpoints.
type Handler struct {
	resolve Resolver
}

// NewHandler constructs a [Handler].
func NewHandler(resolve Resolver) *Handler {
	return &Handler{resolve: resolve}
}

// Routes returns a [chi.Router] with the reader endpoints.
//
// # Endpoints
//   - GET    /              : Full reader view.
//   - DELETE /              : Close the resource and forget its state.
//   - POST   /open          : Open a resource and load its annotations.
//   - PUT    /context       : Move the reading position.
//   - POST   /sync          : Merge the server's lists.
//   - POST   /retry         : Replay pending records.
//   - GET    /{kind}        : One collection (?view=sorted|page|nearby).
//   - POST   /{kind}        : Create a note or chat message.
//   - DELETE /{kind}/{id}   : Delete a confirmed record.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Get("/", handler.view)
	router.Delete("/", handler.clear)
	router.Post("/open", handler.open)
	router.Put("/context", handler.updateContext)
	router.Post("/sync", handler.sync)
	router.Post("/retry", handler.retry)

	router.Route("/{kind}", func(r chi.Router) {
		r.Get("/", handler.list)
		r.Post("/", handler.add)
		r.Delete("/{id}", handler.remove)
	})

	return router
}

// # Request Payloads

type openRequest struct {
	ResourceID   int64        `json:"resource_id"`
	ResourceType ResourceType `json:"resource_type"`
	Title        string       `json:"title"`
}

// # Handlers

func (handler *Handler) view(writer http.ResponseWriter, request *http.Request) {
	respond.OK(writer, handler.resolve(request).View())
}

/*
open initializes the store for a resource and loads its annotations.

POST /api/v1/reader/open

Request:
  - Body: openRequest (ResourceID, ResourceType, Title)

Response:
  - 200: View
  - 400: Unknown resource type or missing id
  - 404/5xx: The resource could not be loaded (the store stays open but empty)
*/
func (handler *Handler) open(writer http.ResponseWriter, request *http.Request) {
	var input openRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	store := handler.resolve(request)
	resource := Resource{ID: input.ResourceID, Title: input.Title}

	if err := store.Initialize(request.Context(), resource, input.ResourceType); err != nil {
		respond.Error(writer, request, err)
		return
	}
	if err := store.SyncWithServer(request.Context()); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, store.View())
}

func (handler *Handler) clear(writer http.ResponseWriter, request *http.Request) {
	handler.resolve(request).Clear(request.Context())
	respond.NoContent(writer)
}

func (handler *Handler) updateContext(writer http.ResponseWriter, request *http.Request) {
	var input ContextUpdate
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	if input.Page != nil {
		validator.Min("page", float64(*input.Page), 1)
	}
	if input.Timestamp != nil {
		validator.Min("timestamp", *input.Timestamp, 0)
	}
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	store := handler.resolve(request)
	store.UpdateContext(request.Context(), input)
	respond.OK(writer, store.View().Context)
}

func (handler *Handler) sync(writer http.ResponseWriter, request *http.Request) {
	store := handler.resolve(request)
	if err := store.SyncWithServer(request.Context()); err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, store.View())
}

/*
retry replays pending records.

POST /api/v1/reader/retry

Response:
  - 200: View (nothing failed)
  - 4xx/5xx: The first failure; the view then shows the rolled-back state
*/
func (handler *Handler) retry(writer http.ResponseWriter, request *http.Request) {
	store := handler.resolve(request)
	if err := store.RetryFailedOperations(request.Context()); err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, store.View())
}

/*
list returns one collection.

GET /api/v1/reader/{kind}?view=sorted|page|nearby

Response:
  - 200: []Annotation (stored order when no view is given)
  - 404: Unknown collection
*/
func (handler *Handler) list(writer http.ResponseWriter, request *http.Request) {
	kind, err := kindParam(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	store := handler.resolve(request)

	var items []Annotation
	switch request.URL.Query().Get("view") {
	case "sorted":
		items = store.Sorted(kind)
	case "page":
		items = store.ForCurrentPage(kind)
	case "nearby":
		items = store.NearTimestamp(kind)
	case "":
		items = store.Annotations(kind)
	default:
		respond.Error(writer, request, validate.RequiredError("view", "Must be one of: sorted, page, nearby"))
		return
	}

	if items == nil {
		items = []Annotation{}
	}
	respond.OK(writer, items)
}

/*
add creates a note or chat message.

POST /api/v1/reader/{kind}

Request:
  - Body: Input

Response:
  - 201: Annotation: The confirmed server record
  - 400: Empty text or no resource open (state untouched)
  - 4xx/5xx: The API failure (the optimistic record was rolled back)
*/
func (handler *Handler) add(writer http.ResponseWriter, request *http.Request) {
	kind, err := kindParam(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input Input
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	created, err := handler.resolve(request).AddAnnotation(request.Context(), kind, input)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.Created(writer, created)
}

/*
remove deletes a confirmed record.

DELETE /api/v1/reader/{kind}/{id}

Response:
  - 204: Deleted
  - 400: The record is still being saved
  - 404: Unknown record
  - 4xx/5xx: The API failure (the record was restored)
*/
func (handler *Handler) remove(writer http.ResponseWriter, request *http.Request) {
	kind, err := kindParam(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	id, err := ParseID(requestutil.Param(request, "id"))
	if err != nil {
		respond.Error(writer, request, apperr.NotFound(kindLabel(kind)))
		return
	}

	if err := handler.resolve(request).DeleteAnnotation(request.Context(), kind, id); err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.NoContent(writer)
}

func kindParam(request *http.Request) (Kind, error) {
	kind, ok := ParseKind(requestutil.Param(request, "kind"))
	if !ok {
		return "", apperr.NotFound("Collection")
	}
	return kind, nil
}
