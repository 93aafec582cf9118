// Copyright (c) 2026 DLMS. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package reader_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/taibuivan/dlms/internal/reader"
)

func note(id int64, content string) reader.Annotation {
	return reader.Annotation{ID: reader.ServerID(id), Kind: reader.KindNote, Content: content}
}

func pendingNote(sequence uint64, content string) reader.Annotation {
	return reader.Annotation{
		ID:      reader.TempID(time.UnixMilli(1700000000000), sequence),
		Kind:    reader.KindNote,
		Content: content,
		State:   reader.StatePending,
	}
}

func ids(items []reader.Annotation) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID.String())
	}
	return out
}

/*
TestMergeServerData covers each merge rule in isolation.
*/
func TestMergeServerData(t *testing.T) {
	temp := pendingNote(1, "draft")

	tests := []struct {
		name    string
		local   []reader.Annotation
		pending map[reader.ID]struct{}
		server  []reader.Annotation
		want    []string
	}{
		{
			name:   "server_version_replaces_confirmed",
			local:  []reader.Annotation{note(1, "old")},
			server: []reader.Annotation{note(1, "new")},
			want:   []string{"1"},
		},
		{
			name:   "confirmed_missing_on_server_is_dropped",
			local:  []reader.Annotation{note(1, "a"), note(2, "b")},
			server: []reader.Annotation{note(2, "b")},
			want:   []string{"2"},
		},
		{
			name:   "pending_survives",
			local:  []reader.Annotation{note(1, "a"), temp},
			server: []reader.Annotation{note(1, "a")},
			want:   []string{"1", temp.ID.String()},
		},
		{
			name:   "new_server_records_are_appended_in_order",
			local:  []reader.Annotation{note(2, "b")},
			server: []reader.Annotation{note(5, "e"), note(2, "b"), note(3, "c")},
			want:   []string{"2", "5", "3"},
		},
		{
			name:    "tracked_id_is_kept_even_without_pending_state",
			local:   []reader.Annotation{note(8, "local edit")},
			pending: map[reader.ID]struct{}{reader.ServerID(8): {}},
			server:  nil,
			want:    []string{"8"},
		},
		{
			name:   "empty_server_keeps_only_pending",
			local:  []reader.Annotation{note(1, "a"), temp},
			server: nil,
			want:   []string{temp.ID.String()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged := reader.MergeServerData(tt.local, tt.pending, tt.server)
			assert.Equal(t, tt.want, ids(merged))
		})
	}
}

/*
TestMergeServerData_ReplacesContent keeps the server's body for confirmed records.
*/
func TestMergeServerData_ReplacesContent(t *testing.T) {
	merged := reader.MergeServerData(
		[]reader.Annotation{note(1, "old")},
		nil,
		[]reader.Annotation{note(1, "new")},
	)

	assert.Equal(t, "new", merged[0].Content)
}

/*
TestMergeServerData_Idempotent merging twice equals merging once.
*/
func TestMergeServerData_Idempotent(t *testing.T) {
	local := []reader.Annotation{note(1, "a"), pendingNote(1, "draft"), note(4, "gone")}
	server := []reader.Annotation{note(3, "c"), note(1, "a2")}

	once := reader.MergeServerData(local, nil, server)
	twice := reader.MergeServerData(once, nil, server)

	assert.Equal(t, once, twice)
}

/*
TestMergeServerData_DoesNotMutateInput keeps the function pure.
*/
func TestMergeServerData_DoesNotMutateInput(t *testing.T) {
	local := []reader.Annotation{note(1, "old"), note(2, "b")}
	server := []reader.Annotation{note(1, "new")}

	_ = reader.MergeServerData(local, nil, server)

	assert.Equal(t, "old", local[0].Content)
	assert.Len(t, local, 2)
}
