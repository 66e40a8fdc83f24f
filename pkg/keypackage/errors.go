package keypackage

import "errors"

// Error kinds a Package raises itself (spec.md §4.8/§7); decode/codec
// layer errors from MarshalBinary/UnmarshalBinary surface unchanged.
var (
	// ErrSubkeyUnavailable is returned by Read/ReadAt when the subkey's
	// state is Used or Expired.
	ErrSubkeyUnavailable = errors.New("keypackage: subkey unavailable")
	// ErrSubkeyExpired is returned when a Volatile subkey's expiry
	// (KeyAuthority.OptionFlag) has passed.
	ErrSubkeyExpired = errors.New("keypackage: subkey expired")
	// ErrUnauthorized is returned when a caller's presented package_tag
	// or domain_id does not match the authority header.
	ErrUnauthorized = errors.New("keypackage: unauthorized")
	// ErrSubkeyNotFound is returned by Read when no subkey with the
	// given id exists in the package.
	ErrSubkeyNotFound = errors.New("keypackage: subkey not found")
	// ErrIndexOutOfRange is returned by ReadAt for index >= N.
	ErrIndexOutOfRange = errors.New("keypackage: index out of range")
	// ErrDuplicateID is returned by Create if two of the subkey ids it
	// generates collide (vanishingly unlikely at 128 bits).
	ErrDuplicateID = errors.New("keypackage: subkey ids are not unique")
)
