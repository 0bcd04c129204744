package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1
	// ErrCodeLogic marks an invariant violation. Logic errors are always
	// fatal to the offending module and are never retried.
	ErrCodeLogic ErrorCode = 2

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidOrder         ErrorCode = 102
	ErrCodeMissingParameter     ErrorCode = 103

	// Module/dispatch errors (200-299)
	// ErrCodeNotImplemented is returned by a module that received an event
	// type it subscribed to but did not override the handler for.
	ErrCodeNotImplemented ErrorCode = 200
	// ErrCodeRecursiveSubscription is returned when registering a subscriber
	// would create a cycle in the subscriber graph.
	ErrCodeRecursiveSubscription ErrorCode = 201
	ErrCodeModuleBlocked         ErrorCode = 202
	ErrCodeModuleStopFailed      ErrorCode = 203

	// Trading errors (300-399)
	ErrCodeOrderFailed       ErrorCode = 300
	ErrCodeOrderUnknown      ErrorCode = 301
	ErrCodeInsufficientFunds ErrorCode = 302
	ErrCodeOrderCheck        ErrorCode = 303
	ErrCodePositionNotFound  ErrorCode = 304
	ErrCodePositionState     ErrorCode = 305

	// Venue communication errors (400-499)
	// ErrCodeCommunication marks a transient venue I/O failure. The polling
	// and reconnection layer retries it; the core only has to tolerate it
	// arriving mid-operation.
	ErrCodeCommunication ErrorCode = 400
	ErrCodeVenueOffline  ErrorCode = 401

	// Market data errors (500-599)
	ErrCodeSecurityExists    ErrorCode = 500
	ErrCodeSecurityNotFound  ErrorCode = 501
	ErrCodeMarketDataStream  ErrorCode = 502
	ErrCodeMarketDataParse   ErrorCode = 503
	ErrCodeMarketDataMissing ErrorCode = 504
)
