package upload

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chaz8081/hubload/internal/ble"
	"github.com/chaz8081/hubload/internal/validate"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, KindUnknown},
		{errors.New("other"), KindUnknown},
		{fmt.Errorf("x: %w", ble.ErrLinkLost), KindLinkLost},
		{ble.ErrSessionClosed, KindLinkLost},
		{fmt.Errorf("x: %w", ble.ErrPacketTooLarge), KindPacketTooLarge},
		{ble.ErrTimeout, KindTimeout},
		{context.DeadlineExceeded, KindTimeout},
		{ble.ErrNotConnected, KindNotConnected},
		{ble.ErrUserCancelled, KindUserCancelled},
		{context.Canceled, KindUserCancelled},
		{ble.ErrDeviceNotFound, KindDeviceNotFound},
		{ble.ErrGattConnectFailed, KindGattConnectFailed},
		{ble.ErrCharacteristicMissing, KindServiceOrCharacteristicMissing},
		{ErrBusy, KindBusy},
		{fmt.Errorf("wrapped: %w", &Error{Kind: KindWriteFailed}), KindWriteFailed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.err), "KindOf(%v)", tt.err)
	}
}

func TestErrorMessage(t *testing.T) {
	e := &Error{
		Kind:   KindWriteFailed,
		Phase:  PhaseTransferring,
		Offset: 40,
		Total:  120,
		Err:    errors.New("gatt: rejected"),
	}
	assert.Equal(t, "upload: write failed during transferring at byte 40/120: gatt: rejected", e.Error())
	assert.True(t, errors.Is(e, e.Err))

	v := &Error{Kind: KindValidation, Report: validate.Validate("import hub")}
	assert.True(t, strings.HasPrefix(v.Error(), "upload: validation failed: "))
	assert.Contains(t, v.Error(), " | ")
}
