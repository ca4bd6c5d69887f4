package main

import (
	"errors"
	"fmt"

	"github.com/chaz8081/hubload/internal/upload"
)

// Exit codes.
const (
	exitSuccess    = 0
	exitGeneral    = 1
	exitConfig     = 2
	exitValidation = 3
	exitNotFound   = 4
	exitConnect    = 5
	exitTimeout    = 6
	exitTransfer   = 7
	exitCancelled  = 130
	exitUsage      = 64
)

const recoverHint = "The hub may be left in paste mode. Run 'hubload stop' to recover."

// cliError is a user-facing error with an optional hint and an exit code.
type cliError struct {
	Message string
	Hint    string
	Cause   error
	Code    int
}

func (e *cliError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *cliError) Unwrap() error {
	return e.Cause
}

func newCLIError(code int, message string) *cliError {
	return &cliError{Message: message, Code: code}
}

func wrapCLIError(code int, message string, cause error) *cliError {
	return &cliError{Message: message, Cause: cause, Code: code}
}

func (e *cliError) withHint(hint string) *cliError {
	e.Hint = hint
	return e
}

// kindError maps a connect or upload failure onto an exit code and hint.
func kindError(message string, err error) *cliError {
	kind := upload.KindOf(err)
	e := wrapCLIError(exitGeneral, message, err)

	switch kind {
	case upload.KindValidation:
		e.Code = exitValidation
		var uerr *upload.Error
		if errors.As(err, &uerr) {
			e.Cause = nil
			e.Message = fmt.Sprintf("%s: %s", message, uerr.Report)
		}
		e.Hint = "Fix the script, then check it with 'hubload validate <file>'."
	case upload.KindDeviceNotFound:
		e.Code = exitNotFound
		e.Hint = "Make sure the hub is on, running Pybricks, and not connected to another app."
	case upload.KindGattConnectFailed, upload.KindServiceOrCharacteristicMissing:
		e.Code = exitConnect
		e.Hint = "Turn the hub off and on again, then retry."
	case upload.KindTimeout:
		e.Code = exitTimeout
		e.Hint = "The hub did not respond in time. Move closer or raise timing.connect_timeout."
	case upload.KindUserCancelled:
		e.Code = exitCancelled
	case upload.KindNotConnected:
		e.Code = exitConnect
	case upload.KindLinkLost, upload.KindWriteFailed, upload.KindPacketTooLarge:
		e.Code = exitTransfer
		e.Hint = recoverHint
	case upload.KindBusy:
		e.Hint = "Wait for the running upload to finish."
	}

	// An abort after paste mode was entered leaves the hub waiting for input.
	var uerr *upload.Error
	if errors.As(err, &uerr) && uerr.Phase >= upload.PhaseTransferring && uerr.Phase < upload.PhaseDone {
		e.Hint = recoverHint
	}
	return e
}

func asCLIError(err error, target **cliError) bool {
	return errors.As(err, target)
}
