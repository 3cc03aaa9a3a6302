package metrics

// Operation names shared by the recorders.
const (
	OpMarkValid   = "mark_valid"
	OpMarkInvalid = "mark_invalid"
	OpMarkSkipped = "mark_skipped"
	OpUpdateLabel = "update_label"
	OpMove        = "move"

	OpListAll   = "list_all"
	OpCounts    = "counts"
	OpCacheHit  = "cache_hit"
	OpCacheMiss = "cache_miss"

	OpDetect    = "detect"
	OpModelLoad = "model_load"
	OpCrop      = "crop"
	OpDecode    = "decode"
)

// Status values for RecordOperation.
const (
	StatusSuccess  = "success"
	StatusError    = "error"
	StatusNotFound = "not_found"
)
