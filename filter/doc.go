// Package filter composes request-driven criteria over bun select queries.
//
// A Descriptor carries normalized filter values. Each Stage reads the keys it
// owns and narrows the query; a Pipeline runs its stages in declaration order
// with the soft-delete visibility stage always last:
//
//	pipeline := filter.NewPipeline(
//		filter.Keyword(filter.KeyQuery, "title", "excerpt"),
//		filter.Equals(filter.KeyStatus, "status"),
//		filter.Trashed(filter.KeyTrashed),
//	)
//	q = pipeline.Apply(db.NewSelect().Model(&posts), descriptor)
//
// Sorting and Paging resolve user supplied sort fields and page sizes
// against per-entity allow-lists.
package filter
