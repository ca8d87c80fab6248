package logkey

// Common keys for structured log attributes, so grepping logs stays sane.
const (
	TraceID   = "trace_id"
	ERROR     = "error"
	UserID    = "user_id"
	ProductID = "product_id"
	OrderID   = "order_id"
	LineID    = "line_id"
	Quantity  = "quantity"
	Available = "available"
	State     = "state"
	Attempt   = "attempt"
)
