package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// ============================================
// Standard Tracing Fields (Context level)
// These fields are propagated through the call chain
// ============================================

const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldJobID is the bulk generation job ID
	FieldJobID = "job_id"

	// FieldStoreID is the tenant store ID
	FieldStoreID = "store_id"

	// FieldShop is the shop domain a job talks to
	FieldShop = "shop"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldQueue is the queue backend name
	FieldQueue = "queue"
)

// ============================================
// Standard Metric Fields (Entry level)
// These fields are used for aggregation and alerting
// ============================================

const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldPage is the page position (cursor or offset) a step worked on
	FieldPage = "page"

	// FieldStatus is a job status or HTTP status code
	FieldStatus = "status"

	// FieldProcessed counts products generated successfully
	FieldProcessed = "processed"

	// FieldFailed counts products the generator rejected
	FieldFailed = "failed"
)
