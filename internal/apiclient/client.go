// Copyright (c) 2026 DLMS. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package apiclient is the HTTP boundary between the gateway and the remote
library API.

Every outgoing request gets the base URL, JSON headers and the workspace's
bearer token. Every response goes through a single interceptor that maps
status codes onto [apperr.AppError] kinds.

# Credential invalidation

A 401 from ANY endpoint triggers the client's [UnauthorizedHandler] before the
error is returned. This is the single point where stale credentials are
cleared; the session component registers itself here so that a just-cleared
token can never be revalidated in a loop.
*/
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/taibuivan/dlms/internal/platform/apperr"
	"github.com/taibuivan/dlms/internal/platform/constants"
	"github.com/taibuivan/dlms/internal/platform/ctxutil"
)

// maxErrorBody bounds how much of an error body we read for its message.
const maxErrorBody = 64 << 10

// # Contracts

// TokenSource yields the bearer token for outgoing requests ("" for anonymous).
type TokenSource interface {
	Token(context context.Context) (string, error)
}

// UnauthorizedHandler is invoked once per request that the API answers with 401.
type UnauthorizedHandler func(context context.Context)

// Envelope is the `{"data": ...}` wrapper the library API uses for resources.
type Envelope[T any] struct {
	Data *T `json:"data"`
}

// # Client

// Client issues JSON requests against the library API.
//
// A base client is created once at startup; [Client.ForSession] derives a
// lightweight copy bound to one workspace's token and 401 handler.
type Client struct {
	baseURL        *url.URL
	httpClient     *http.Client
	tokens         TokenSource
	onUnauthorized UnauthorizedHandler
	logger         *slog.Logger
}

// Options configures a base [Client].
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// New validates the base URL and constructs a [Client].
func New(options Options) (*Client, error) {
	baseURL, err := url.Parse(strings.TrimRight(options.BaseURL, "/") + "/")
	if err != nil || baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("apiclient: invalid base URL %q", options.BaseURL)
	}

	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: options.Timeout}
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// ForSession returns a copy of the client that authenticates with tokens and
// reports 401 responses to onUnauthorized.
func (client *Client) ForSession(tokens TokenSource, onUnauthorized UnauthorizedHandler) *Client {
	bound := *client
	bound.tokens = tokens
	bound.onUnauthorized = onUnauthorized
	return &bound
}

// # Verbs

// Get issues a GET request and decodes the JSON response into out.
func (client *Client) Get(context context.Context, path string, query url.Values, out any) error {
	return client.do(context, http.MethodGet, path, query, nil, out)
}

// Post issues a POST request with a JSON body and decodes the response into out.
func (client *Client) Post(context context.Context, path string, body, out any) error {
	return client.do(context, http.MethodPost, path, nil, body, out)
}

// Delete issues a DELETE request, ignoring any response body.
func (client *Client) Delete(context context.Context, path string) error {
	return client.do(context, http.MethodDelete, path, nil, nil, nil)
}

// # Request Pipeline

func (client *Client) do(context context.Context, method, path string, query url.Values, body, out any) error {
	request, err := client.newRequest(context, method, path, query, body)
	if err != nil {
		return err
	}

	startTime := time.Now()
	response, err := client.httpClient.Do(request)
	if err != nil {
		ctxutil.GetLogger(context).WarnContext(context, "api_request_failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.Any("error", err),
		)
		return apperr.Network(fmt.Errorf("apiclient_%s_failed: %w", strings.ToLower(method), err))
	}
	defer response.Body.Close()

	client.logger.DebugContext(context, "api_request_finished",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", response.StatusCode),
		slog.Int64("latency_ms", time.Since(startTime).Milliseconds()),
	)

	if response.StatusCode >= 300 {
		return client.intercept(context, response)
	}

	if out == nil || response.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, response.Body)
		return nil
	}

	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return apperr.Upstream(response.StatusCode, "Invalid response format").WithCause(err)
	}
	return nil
}

func (client *Client) newRequest(context context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	target := client.baseURL.JoinPath(strings.TrimLeft(path, "/"))
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, apperr.Internal(fmt.Errorf("apiclient_encode_failed: %w", err))
		}
		reader = bytes.NewReader(payload)
	}

	request, err := http.NewRequestWithContext(context, method, target.String(), reader)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("apiclient_request_failed: %w", err))
	}

	request.Header.Set("Accept", "application/json")
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if requestID := ctxutil.GetRequestID(context); requestID != "" {
		request.Header.Set(constants.HeaderXRequestID, requestID)
	}

	// Bearer injection
	if client.tokens != nil {
		token, err := client.tokens.Token(context)
		if err != nil {
			return nil, apperr.Internal(fmt.Errorf("apiclient_token_failed: %w", err))
		}
		if token != "" {
			request.Header.Set(constants.HeaderAuthorization, "Bearer "+token)
		}
	}

	return request, nil
}

// # Response Interceptor

// errorBody is the Laravel-style error payload.
type errorBody struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

// intercept converts a non-2xx response into an [apperr.AppError].
func (client *Client) intercept(context context.Context, response *http.Response) error {
	var body errorBody
	raw, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBody))
	_ = json.Unmarshal(raw, &body)

	switch response.StatusCode {
	case http.StatusUnauthorized:
		if client.onUnauthorized != nil {
			client.onUnauthorized(context)
		}
		return apperr.Unauthenticated(messageOr(body.Message, "Your session has expired")).
			WithRedirect(constants.PathLogin)

	case http.StatusForbidden:
		return apperr.Forbidden(messageOr(body.Message, "You are not allowed to do that"))

	case http.StatusUnprocessableEntity:
		return apperr.ValidationError(messageOr(body.Message, "Validation failed"), fieldErrors(body.Errors)...)

	default:
		return apperr.Upstream(response.StatusCode, body.Message).
			WithCause(errors.New(strings.TrimSpace(string(raw))))
	}
}

func messageOr(message, fallback string) string {
	if strings.TrimSpace(message) == "" {
		return fallback
	}
	return message
}

func fieldErrors(errs map[string][]string) []apperr.FieldError {
	var details []apperr.FieldError
	for field, messages := range errs {
		for _, message := range messages {
			details = append(details, apperr.FieldError{Field: field, Message: message})
		}
	}
	return details
}
