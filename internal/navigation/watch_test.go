// Copyright (c) 2026 DLMS. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package navigation_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/dlms/internal/navigation"
)

const firstTable = `
routes:
  - { name: home, path: /, public: true }
  - { name: dashboard, path: /dashboard, requires_auth: true }
`

const secondTable = `
routes:
  - { name: home, path: /, public: true }
  - { name: dashboard, path: /dashboard, requires_auth: true }
  - { name: faq, path: /help/faq }
`

/*
TestTable_Swap replaces every route at once.
*/
func TestTable_Swap(t *testing.T) {
	table, err := navigation.ParseTable([]byte(firstTable))
	require.NoError(t, err)

	next, err := navigation.ParseTable([]byte(secondTable))
	require.NoError(t, err)

	route, _ := table.Match("/help/faq")
	assert.Nil(t, route)

	table.Swap(next)

	route, _ = table.Match("/help/faq")
	require.NotNil(t, route)
	assert.Equal(t, "faq", route.Name)
	assert.Len(t, table.Routes(), 3)
}

/*
TestWatch_ReloadsOnChange picks up a rewritten file and ignores an invalid one.
*/
func TestWatch_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(firstTable), 0o600))

	table, err := navigation.LoadTable(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, navigation.Watch(ctx, path, table, logger))

	// 1. A valid rewrite is installed.
	require.NoError(t, os.WriteFile(path, []byte(secondTable), 0o600))
	assert.Eventually(t, func() bool {
		_, ok := table.Lookup("faq")
		return ok
	}, 5*time.Second, 20*time.Millisecond)

	// 2. A broken file keeps the previous routes.
	require.NoError(t, os.WriteFile(path, []byte("routes: [ {"), 0o600))
	time.Sleep(500 * time.Millisecond)

	_, ok := table.Lookup("faq")
	assert.True(t, ok)
}

/*
TestWatch_MissingDirectory fails to start.
*/
func TestWatch_MissingDirectory(t *testing.T) {
	table := navigation.DefaultTable()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	err := navigation.Watch(context.Background(), filepath.Join(t.TempDir(), "missing", "routes.yaml"), table, logger)
	assert.Error(t, err)
}
