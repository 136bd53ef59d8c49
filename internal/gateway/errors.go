package gateway

import "errors"

// Domain-specific errors for gateway transports.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned by Send while the broker session is not
	// established. The message is dropped.
	ErrNotConnected = errors.New("gateway: not connected")

	// ErrNoLink is returned by Init when the transport has no link.
	ErrNoLink = errors.New("gateway: no link configured")

	// ErrPublishFailed wraps a link publish failure.
	ErrPublishFailed = errors.New("gateway: publish failed")

	// ErrSubscribeFailed wraps a link subscribe failure.
	ErrSubscribeFailed = errors.New("gateway: subscribe failed")

	// ErrRunnerStopped is returned by Runner.Send after the driver loop has
	// exited.
	ErrRunnerStopped = errors.New("gateway: runner stopped")
)
