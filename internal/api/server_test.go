// Copyright (c) 2026 DLMS. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/dlms/internal/api"
	"github.com/taibuivan/dlms/internal/apiclient"
	"github.com/taibuivan/dlms/internal/navigation"
	"github.com/taibuivan/dlms/internal/platform/config"
	"github.com/taibuivan/dlms/internal/platform/constants"
	"github.com/taibuivan/dlms/internal/workspace"
)

// # Fixtures

type envelope struct {
	Data     json.RawMessage `json:"data"`
	Error    string          `json:"error"`
	Code     string          `json:"code"`
	Redirect string          `json:"redirect"`
}

// libraryAPI fakes the library service: one student account and one e-book.
func libraryAPI(t *testing.T) *httptest.Server {
	t.Helper()

	const token = "token-7"
	authorized := func(request *http.Request) bool {
		return request.Header.Get("Authorization") == "Bearer "+token
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", func(writer http.ResponseWriter, _ *http.Request) {
		_, _ = writer.Write([]byte(`{"access_token":"` + token + `","user":{"id":3,"name":"Minh","roles":["student"]}}`))
	})
	mux.HandleFunc("POST /logout", func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /user", func(writer http.ResponseWriter, request *http.Request) {
		if !authorized(request) {
			writer.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = writer.Write([]byte(`{"id":3,"name":"Minh","roles":["student"]}`))
	})
	mux.HandleFunc("GET /ebooks/{id}", func(writer http.ResponseWriter, request *http.Request) {
		if !authorized(request) {
			writer.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = writer.Write([]byte(`{"data":{"id":7,"title":"Concurrency in Go","notes":[{"id":50,"e_book_id":7,"content":"Intro","page_number":1}],"chat_messages":[]}}`))
	})
	mux.HandleFunc("POST /notes", func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusCreated)
		_, _ = writer.Write([]byte(`{"data":{"id":55,"e_book_id":7,"content":"Key idea","page_number":1}}`))
	})
	mux.HandleFunc("DELETE /notes/{id}", func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusNoContent)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

// gateway starts the full HTTP stack against the fake library API.
func gateway(t *testing.T, health api.HealthDependencies) *httptest.Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{ServerPort: "0", Environment: "test", ReaderStateBackend: config.BackendMemory}

	client, err := apiclient.New(apiclient.Options{BaseURL: libraryAPI(t).URL, Timeout: time.Second, Logger: logger})
	require.NoError(t, err)

	table := navigation.DefaultTable()
	registry := workspace.NewRegistry(workspace.Options{
		Client:        client,
		Table:         table,
		ReaderBackend: config.BackendMemory,
		StateTTL:      time.Hour,
		IdleTTL:       time.Hour,
		Logger:        logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	liveness, readiness := api.NewHealthHandlers(health, logger)
	server := api.NewServer(ctx, cfg, logger, registry, api.NewHandlers(table, liveness, readiness))

	httpServer := httptest.NewServer(server.Handler())
	t.Cleanup(httpServer.Close)
	return httpServer
}

// browser is one tab: it keeps its workspace cookie and never follows redirects.
func browser(t *testing.T) *http.Client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func call(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	request, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := client.Do(request)
	require.NoError(t, err)
	defer response.Body.Close()

	var decoded envelope
	if response.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(response.Body).Decode(&decoded))
	}
	return response, decoded
}

func signIn(t *testing.T, client *http.Client, baseURL, redirect string) string {
	t.Helper()

	response, body := call(t, client, http.MethodPost, baseURL+"/api/v1/session/login", map[string]any{
		"login":    "minh",
		"password": "secret",
		"redirect": redirect,
	})
	require.Equal(t, http.StatusOK, response.StatusCode, body.Error)

	var login struct {
		Redirect string `json:"redirect"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &login))
	return login.Redirect
}

// # Probes

/*
TestServer_Probes answers /health unconditionally and reports failing stores on /ready.
*/
func TestServer_Probes(t *testing.T) {
	healthy := gateway(t, api.HealthDependencies{})
	client := browser(t)

	response, _ := call(t, client, http.MethodGet, healthy.URL+"/health", nil)
	assert.Equal(t, http.StatusOK, response.StatusCode)

	response, _ = call(t, client, http.MethodGet, healthy.URL+"/ready", nil)
	assert.Equal(t, http.StatusOK, response.StatusCode)

	degraded := gateway(t, api.HealthDependencies{
		CheckCache: func(context.Context) error { return errors.New("connection refused") },
	})

	response, body := call(t, client, http.MethodGet, degraded.URL+"/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, response.StatusCode)
	assert.Contains(t, string(body.Data), `"degraded"`)
	assert.Contains(t, string(body.Data), `"redis"`)
}

// # Navigation

/*
TestServer_PageNavigation redirects, allows or rejects client page loads.
*/
func TestServer_PageNavigation(t *testing.T) {
	server := gateway(t, api.HealthDependencies{})
	client := browser(t)

	response, body := call(t, client, http.MethodGet, server.URL+"/dashboard", nil)
	assert.Equal(t, http.StatusSeeOther, response.StatusCode)
	assert.Equal(t, "/auth/login?redirect=/dashboard", response.Header.Get("Location"))
	assert.Contains(t, string(body.Data), `"AUTH_FAIL"`)

	response, _ = call(t, client, http.MethodGet, server.URL+"/auth/login", nil)
	assert.Equal(t, http.StatusOK, response.StatusCode)

	response, body = call(t, client, http.MethodGet, server.URL+"/no/such/page", nil)
	assert.Equal(t, http.StatusNotFound, response.StatusCode)
	assert.Equal(t, "NOT_FOUND", body.Code)

	signIn(t, client, server.URL, "")

	response, _ = call(t, client, http.MethodGet, server.URL+"/student/borrowed", nil)
	assert.Equal(t, http.StatusOK, response.StatusCode)

	response, _ = call(t, client, http.MethodGet, server.URL+"/admin/users", nil)
	assert.Equal(t, http.StatusSeeOther, response.StatusCode)
	assert.Equal(t, constants.PathAccessDenied, response.Header.Get("Location"))

	response, _ = call(t, client, http.MethodGet, server.URL+"/auth/login", nil)
	assert.Equal(t, http.StatusSeeOther, response.StatusCode)
	assert.Equal(t, "/student/borrowed", response.Header.Get("Location"))
}

/*
TestServer_ResolveEndpoint exposes guard decisions without navigating.
*/
func TestServer_ResolveEndpoint(t *testing.T) {
	server := gateway(t, api.HealthDependencies{})
	client := browser(t)

	response, body := call(t, client, http.MethodGet, server.URL+"/api/v1/navigation/resolve?path=/reader/9", nil)
	require.Equal(t, http.StatusOK, response.StatusCode)

	var decision navigation.Decision
	require.NoError(t, json.Unmarshal(body.Data, &decision))
	assert.Equal(t, navigation.OutcomeAuthFail, decision.Outcome)
	assert.Equal(t, "/auth/login?redirect=/reader/9", decision.Redirect)

	response, body = call(t, client, http.MethodGet, server.URL+"/api/v1/navigation/resolve", nil)
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", body.Code)
}

// # Session

/*
TestServer_LoginRedirect honours a safe requested path and falls back to the landing page.
*/
func TestServer_LoginRedirect(t *testing.T) {
	server := gateway(t, api.HealthDependencies{})

	assert.Equal(t, "/reader/7", signIn(t, browser(t), server.URL, "/reader/7"))
	assert.Equal(t, "/student/borrowed", signIn(t, browser(t), server.URL, ""))
	assert.Equal(t, "/student/borrowed", signIn(t, browser(t), server.URL, "//evil.example"))
}

/*
TestServer_WorkspacesAreIsolated keeps a sign-in inside its own browser tab.
*/
func TestServer_WorkspacesAreIsolated(t *testing.T) {
	server := gateway(t, api.HealthDependencies{})
	first, second := browser(t), browser(t)

	signIn(t, first, server.URL, "")

	_, body := call(t, first, http.MethodGet, server.URL+"/api/v1/session", nil)
	assert.Contains(t, string(body.Data), `"is_authenticated":true`)

	_, body = call(t, second, http.MethodGet, server.URL+"/api/v1/session", nil)
	assert.Contains(t, string(body.Data), `"has_token":false`)

	response, body := call(t, first, http.MethodPost, server.URL+"/api/v1/session/logout", nil)
	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.Contains(t, string(body.Data), `"redirect":"/"`)

	_, body = call(t, first, http.MethodGet, server.URL+"/api/v1/session", nil)
	assert.Contains(t, string(body.Data), `"has_token":false`)
}

/*
TestServer_LoginValidation rejects empty credentials before calling the library API.
*/
func TestServer_LoginValidation(t *testing.T) {
	server := gateway(t, api.HealthDependencies{})

	response, body := call(t, browser(t), http.MethodPost, server.URL+"/api/v1/session/login", map[string]any{"login": "minh"})
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", body.Code)
}

// # Reader

/*
TestServer_ReaderRequiresSignIn answers 401 with the login redirect.
*/
func TestServer_ReaderRequiresSignIn(t *testing.T) {
	server := gateway(t, api.HealthDependencies{})

	response, body := call(t, browser(t), http.MethodGet, server.URL+"/api/v1/reader", nil)
	assert.Equal(t, http.StatusUnauthorized, response.StatusCode)
	assert.Equal(t, constants.PathLogin, body.Redirect)
}

/*
TestServer_ReaderFlow opens an e-book, adds a note and deletes it.
*/
func TestServer_ReaderFlow(t *testing.T) {
	server := gateway(t, api.HealthDependencies{})
	client := browser(t)
	signIn(t, client, server.URL, "")

	reader := server.URL + "/api/v1/reader"

	response, body := call(t, client, http.MethodPost, reader+"/open", map[string]any{"resource_id": 7, "resource_type": "pdf"})
	require.Equal(t, http.StatusOK, response.StatusCode, body.Error)
	assert.Contains(t, string(body.Data), `"Intro"`)

	response, body = call(t, client, http.MethodPost, reader+"/notes", map[string]any{"content": "Key idea"})
	require.Equal(t, http.StatusCreated, response.StatusCode, body.Error)
	assert.Contains(t, string(body.Data), `"id":55`)

	_, body = call(t, client, http.MethodGet, reader+"/notes", nil)
	var notes []map[string]any
	require.NoError(t, json.Unmarshal(body.Data, &notes))
	assert.Len(t, notes, 2)

	response, _ = call(t, client, http.MethodDelete, reader+"/notes/55", nil)
	assert.Equal(t, http.StatusNoContent, response.StatusCode)

	response, body = call(t, client, http.MethodDelete, reader+"/notes/55", nil)
	assert.Equal(t, http.StatusNotFound, response.StatusCode)
	assert.Equal(t, "NOT_FOUND", body.Code)

	response, body = call(t, client, http.MethodGet, reader+"/bookmarks", nil)
	assert.Equal(t, http.StatusNotFound, response.StatusCode)
	assert.Equal(t, "NOT_FOUND", body.Code)

	response, body = call(t, client, http.MethodPut, reader+"/context", map[string]any{"page": 0})
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", body.Code)

	response, _ = call(t, client, http.MethodDelete, reader, nil)
	assert.Equal(t, http.StatusNoContent, response.StatusCode)
}
