// Copyright (c) 2026 DLMS. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package reader

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/taibuivan/dlms/internal/apiclient"
	"github.com/taibuivan/dlms/internal/platform/apperr"
)

// CreateRequest is the body of POST /notes and POST /chat-messages.
type CreateRequest struct {
	EbookID       int64    `json:"e_book_id"`
	Content       string   `json:"content,omitempty"`
	Question      string   `json:"question,omitempty"`
	IsAnonymous   *bool    `json:"is_anonymous,omitempty"`
	PageNumber    *int     `json:"page_number,omitempty"`
	HighlightText *string  `json:"highlight_text,omitempty"`
	Timestamp     *float64 `json:"timestamp,omitempty"`
	SentAt        string   `json:"sent_at,omitempty"`
}

// Backend is the library API surface the store reconciles against.
type Backend interface {

	// Create persists a new annotation and returns the server record.
	Create(context context.Context, kind Kind, request CreateRequest) (*Annotation, error)

	// Delete removes a confirmed annotation.
	Delete(context context.Context, kind Kind, id ID) error

	// Fetch returns the authoritative resource with both collections.
	Fetch(context context.Context, resourceID int64) (*Resource, error)
}

// # Library API Backend

// RemoteBackend implements [Backend] against the library API.
type RemoteBackend struct {
	client *apiclient.Client
}

// NewRemoteBackend wraps a session-bound API client.
func NewRemoteBackend(client *apiclient.Client) *RemoteBackend {
	return &RemoteBackend{client: client}
}

func collectionPath(kind Kind) string {
	if kind == KindChat {
		return "chat-messages"
	}
	return "notes"
}

// Create posts the annotation; the API answers `{"data": record}`.
func (backend *RemoteBackend) Create(context context.Context, kind Kind, request CreateRequest) (*Annotation, error) {
	var envelope apiclient.Envelope[Annotation]
	if err := backend.client.Post(context, collectionPath(kind), request, &envelope); err != nil {
		return nil, err
	}

	if envelope.Data == nil {
		return nil, apperr.Upstream(http.StatusBadGateway, "Invalid response format")
	}
	return envelope.Data, nil
}

// Delete issues DELETE /notes/:id or /chat-messages/:id.
func (backend *RemoteBackend) Delete(context context.Context, kind Kind, id ID) error {
	return backend.client.Delete(context, fmt.Sprintf("%s/%s", collectionPath(kind), id))
}

// Fetch issues GET /ebooks/:id?with=notes,chatMessages.
func (backend *RemoteBackend) Fetch(context context.Context, resourceID int64) (*Resource, error) {
	var envelope apiclient.Envelope[Resource]
	query := url.Values{"with": {"notes,chatMessages"}}

	if err := backend.client.Get(context, fmt.Sprintf("ebooks/%d", resourceID), query, &envelope); err != nil {
		return nil, err
	}

	if envelope.Data == nil {
		return nil, apperr.Upstream(http.StatusBadGateway, "Invalid response format")
	}
	return envelope.Data, nil
}
