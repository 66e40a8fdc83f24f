package kex

import "errors"

// Error kinds per spec.md §7, scoped to the ones the KEX machine raises
// itself (NotInitialized and Unsupported are primitive/cipher-layer
// concerns surfaced unchanged from their origin packages).
var (
	ErrAuthenticationFailed = errors.New("kex: authentication failed")
	ErrProtocolError        = errors.New("kex: protocol error")
	ErrExchangeTimeout      = errors.New("kex: exchange timeout")
	ErrPeerRefused          = errors.New("kex: peer refused")
)

// Severity tags a SessionError event (spec.md §6.2/§7).
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
	SeverityFatal
)
