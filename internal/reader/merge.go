// Copyright (c) 2026 DLMS. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package reader

import (
	"cmp"
	"math"
	"slices"

	"github.com/taibuivan/dlms/pkg/slice"
)

// nearTimestampWindow is the ±range, in seconds, of [NearTimestamp].
const nearTimestampWindow = 60

// # Server Merge

/*
MergeServerData reconciles a local collection with the server's list.

Rules:
  - Pending local records (by state or by membership in pending) are kept untouched.
  - Other local records present on the server are replaced by the server version.
  - Other local records absent from the server were deleted elsewhere and are dropped.
  - Server records not matched above are appended in server order.

The function is pure and idempotent: merging the same server list twice gives
the same result as merging it once.
*/
func MergeServerData(local []Annotation, pending map[ID]struct{}, server []Annotation) []Annotation {
	serverByID := make(map[ID]Annotation, len(server))
	for _, record := range server {
		serverByID[record.ID] = record
	}

	merged := make([]Annotation, 0, len(local)+len(server))
	consumed := make(map[ID]bool, len(server))

	for _, record := range local {
		_, tracked := pending[record.ID]
		if record.Pending() || tracked {
			merged = append(merged, record)
			continue
		}

		if fresh, ok := serverByID[record.ID]; ok && !consumed[record.ID] {
			merged = append(merged, fresh)
			consumed[record.ID] = true
		}
	}

	for _, record := range server {
		if consumed[record.ID] {
			continue
		}
		consumed[record.ID] = true
		merged = append(merged, serverByID[record.ID])
	}

	return merged
}

// # Derived Views

// sortAnnotations orders by timestamp for video, else by page then creation time.
func sortAnnotations(items []Annotation, resourceType ResourceType) []Annotation {
	sorted := slices.Clone(items)

	if resourceType == ResourceTypeVideo {
		slices.SortStableFunc(sorted, func(a, b Annotation) int {
			return cmp.Compare(a.seconds(), b.seconds())
		})
		return sorted
	}

	slices.SortStableFunc(sorted, func(a, b Annotation) int {
		if byPage := cmp.Compare(a.page(), b.page()); byPage != 0 {
			return byPage
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return sorted
}

// onPage keeps records anchored on page. Non-pdf resources are returned unfiltered.
func onPage(items []Annotation, resourceType ResourceType, page int) []Annotation {
	if resourceType != ResourceTypePDF {
		return slices.Clone(items)
	}

	return slice.Filter(items, func(item Annotation) bool { return item.page() == page })
}

// nearTimestamp keeps records within ±60 s of seconds. Non-video resources are returned unfiltered.
func nearTimestamp(items []Annotation, resourceType ResourceType, seconds float64) []Annotation {
	if resourceType != ResourceTypeVideo {
		return slices.Clone(items)
	}

	return slice.Filter(items, func(item Annotation) bool {
		return math.Abs(item.seconds()-seconds) <= nearTimestampWindow
	})
}
