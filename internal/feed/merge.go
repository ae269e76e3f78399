package feed

import (
	"sort"

	"github.com/davitran/hr-notify/internal/model"
	"github.com/davitran/hr-notify/internal/source"
)

// Merge combines best-effort results from the generic and presence
// adapters into one normalized page. A failed adapter contributes a nil
// result. The combined raw set may hold up to twice the limit, since
// both adapters are queried with the same limit; truncation happens
// only after the merge-sort so the most recent records from either
// source survive.
func Merge(
	generic *source.FetchResult,
	presence *source.FetchResult,
	page int,
	limit int,
) model.FeedPage {
	var items []model.Notification
	if generic != nil {
		items = append(items, generic.Items...)
	}
	if presence != nil {
		items = append(items, presence.Items...)
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		// Tie-break on (origin, id) so repeated merges of the same
		// upstream snapshots always order identically.
		if a.Origin != b.Origin {
			return a.Origin < b.Origin
		}
		return a.ID < b.ID
	})

	rawCount := len(items)
	if limit > 0 && rawCount > limit {
		items = items[:limit]
	}

	return model.FeedPage{
		Items: items,
		Meta:  reconcileMeta(generic, presence, rawCount, page, limit),
	}
}

// reconcileMeta computes pagination metadata for the merged page. When
// the presence source contributed records, the generic source's total
// no longer covers the page's contents, so the total is approximated as
// max(generic total, merged record count). When presence contributed
// nothing, the generic source's own metadata passes through unchanged.
func reconcileMeta(
	generic *source.FetchResult,
	presence *source.FetchResult,
	mergedCount int,
	page int,
	limit int,
) model.PageMeta {
	meta := model.PageMeta{Page: page, Limit: limit}

	if presence == nil || len(presence.Items) == 0 {
		if generic != nil {
			meta.Total = generic.Total
			meta.TotalPages = generic.TotalPages
			if meta.TotalPages == 0 && limit > 0 {
				meta.TotalPages = pageCount(meta.Total, limit)
			}
		}
		return meta
	}

	total := mergedCount
	if generic != nil && generic.Total > total {
		total = generic.Total
	}

	meta.Total = total
	if limit > 0 {
		meta.TotalPages = pageCount(total, limit)
	}
	return meta
}

// pageCount returns the number of pages needed for total records.
func pageCount(total, limit int) int {
	if total <= 0 || limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}
