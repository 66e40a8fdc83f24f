package session

import "errors"

// Error kinds a Session raises itself (spec.md §4.7/§7); wire- and
// cipher-layer errors (ErrTruncatedFrame, ErrAuthenticationFailed, ...)
// surface unchanged from their origin packages.
var (
	// ErrPayloadTooLarge is returned when a received Message payload, or
	// a reassembling file transfer, would exceed Config.MaxAllocation.
	ErrPayloadTooLarge = errors.New("session: payload exceeds configured maximum")
	// ErrSessionClosed is returned by Send/SendFile after Disconnect.
	ErrSessionClosed = errors.New("session: closed")
	// ErrMaxAllocationRequired is returned by New when Config.MaxAllocation
	// is zero; per spec.md §9's redesign note this has no default.
	ErrMaxAllocationRequired = errors.New("session: MaxAllocation must be set, no default is provided")
	// ErrIntegrityFailed is returned when a transfer frame's running MAC
	// does not match the receiver's recomputation.
	ErrIntegrityFailed = errors.New("session: transfer integrity check failed")
	// ErrTransferRejected names a peer's refusal of a file transfer.
	// SendFile does not return it: a refusing peer drops the transfer
	// without replying, so the sending side is not told.
	ErrTransferRejected = errors.New("session: peer rejected file transfer")
	// ErrUnexpectedTransferFrame is returned when a Chunk/Final frame
	// arrives with no transfer in progress.
	ErrUnexpectedTransferFrame = errors.New("session: transfer frame received with no transfer pending")
	// ErrPeerSilent is returned by Run when no inbound traffic has been
	// observed for 3 * KeepAliveInterval (spec.md §4.7 keep_alive).
	ErrPeerSilent = errors.New("session: peer silent past keep-alive window")
	// ErrRekeyInProgress is returned by Rekey when a rekey is already underway.
	ErrRekeyInProgress = errors.New("session: rekey already in progress")
	// ErrRekeyTimeout is returned when the peer does not respond to a rekey
	// exchange frame within rekeyTimeout.
	ErrRekeyTimeout = errors.New("session: rekey timed out waiting for peer")
)
