package kex

import "github.com/modulexcite/cex/pkg/dtm/wire"

// ExchangeFlag and ServiceFlag are re-exported from pkg/dtm/wire so the
// state machine can name phases without qualifying every reference.
type (
	ExchangeFlag = wire.ExchangeFlag
	ServiceFlag  = wire.ServiceFlag
)

const (
	ExchangeConnect            = wire.ExchangeConnect
	ExchangeInit               = wire.ExchangeInit
	ExchangePreAuth            = wire.ExchangePreAuth
	ExchangeAuthEx             = wire.ExchangeAuthEx
	ExchangeAuthEstablished    = wire.ExchangeAuthEstablished
	ExchangePrePrimary         = wire.ExchangePrePrimary
	ExchangePrimeEx            = wire.ExchangePrimeEx
	ExchangePrimaryEstablished = wire.ExchangePrimaryEstablished
	ExchangeEstablished        = wire.ExchangeEstablished

	ServiceInternal      = wire.ServiceInternal
	ServiceRefusal       = wire.ServiceRefusal
	ServiceDisconnected  = wire.ServiceDisconnected
	ServiceResend        = wire.ServiceResend
	ServiceOutOfSequence = wire.ServiceOutOfSequence
	ServiceDataLost      = wire.ServiceDataLost
	ServiceTerminate     = wire.ServiceTerminate
	ServiceResync        = wire.ServiceResync
	ServiceEcho          = wire.ServiceEcho
	ServiceKeepAlive     = wire.ServiceKeepAlive
)
