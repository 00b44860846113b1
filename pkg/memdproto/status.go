package memdproto

import "github.com/latticekv/cbcore/pkg/types"

// WireStatus is the raw 2-byte status field from a response header.
type WireStatus uint16

const (
	WireSuccess          WireStatus = 0x0000
	WireKeyNotFound      WireStatus = 0x0001
	WireKeyExists        WireStatus = 0x0002
	WireValueTooLarge    WireStatus = 0x0003
	WireInvalidArgs      WireStatus = 0x0004
	WireNotStored        WireStatus = 0x0005
	WireUnknownCommand   WireStatus = 0x0081
	WireOutOfMemory      WireStatus = 0x0082
	WireNotMyVBucket     WireStatus = 0x0007
	WireAuthError        WireStatus = 0x0020
	WireAuthContinue     WireStatus = 0x0021
	WireBusy             WireStatus = 0x0085
	WireTemporaryFailure WireStatus = 0x0086
	WireInternalError    WireStatus = 0x0084
)

// Classify maps a raw wire status to the small enum the rest of the
// router reasons about (spec §4.4 "Response classification"). Statuses
// outside the fixed set fall through to StatusErrorMap. No caller looks
// such a status up in the node's cached error map, so Result.ErrorMapText
// stays empty.
func Classify(ws WireStatus) types.Status {
	switch ws {
	case WireSuccess:
		return types.StatusSuccess
	case WireKeyNotFound:
		return types.StatusKeyNotFound
	case WireKeyExists:
		return types.StatusKeyExists
	case WireValueTooLarge:
		return types.StatusValueTooLarge
	case WireNotStored, WireInvalidArgs:
		return types.StatusNotStored
	case WireAuthError, WireAuthContinue:
		return types.StatusAuthError
	case WireNotMyVBucket:
		return types.StatusNotMyVBucket
	case WireBusy:
		return types.StatusBusy
	case WireTemporaryFailure:
		return types.StatusTemporaryFailure
	case WireUnknownCommand:
		return types.StatusUnknownCommand
	case WireOutOfMemory:
		return types.StatusOutOfMemory
	case WireInternalError:
		return types.StatusInternalError
	default:
		return types.StatusErrorMap
	}
}
