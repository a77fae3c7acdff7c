package procurement

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/procureflow/internal/domain/entity"
	domainwf "github.com/garyjia/procureflow/internal/domain/workflow"
)

func TestBuildOrderStateMachine(t *testing.T) {
	tests := []struct {
		name     string
		from     entity.OrderStatus
		approved bool
		to       entity.OrderStatus
		wantErr  error
	}{
		{"draft to ordered when approved", entity.OrderStatusDraft, true, entity.OrderStatusOrdered, nil},
		{"draft to ordered when not approved", entity.OrderStatusDraft, false, "", domainwf.ErrGuardFailed},
		{"ordered saved again", entity.OrderStatusOrdered, true, entity.OrderStatusOrdered, nil},
		{"ordered saved again after approval was lost", entity.OrderStatusOrdered, false, entity.OrderStatusOrdered, nil},
		{"ordered back to draft", entity.OrderStatusOrdered, true, entity.OrderStatusDraft, nil},
		{"ordered to cancelled", entity.OrderStatusOrdered, true, entity.OrderStatusCancelled, nil},
		{"draft to cancelled", entity.OrderStatusDraft, false, entity.OrderStatusCancelled, nil},
		{"draft saved again", entity.OrderStatusDraft, false, entity.OrderStatusDraft, nil},
		{"cancelled back to draft", entity.OrderStatusCancelled, false, entity.OrderStatusDraft, nil},
		{"cancelled straight to ordered", entity.OrderStatusCancelled, true, "", domainwf.ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			approved := tt.approved
			machine, err := BuildOrderStateMachine(tt.from, func() bool { return approved })
			require.NoError(t, err)

			target := tt.to
			if target == "" {
				target = entity.OrderStatusOrdered
			}
			trigger, err := triggerFor(target)
			require.NoError(t, err)

			err = machine.Fire(context.Background(), trigger)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				assert.Equal(t, domainwf.State(tt.from), machine.State())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, domainwf.State(tt.to), machine.State())
		})
	}
}

func TestBuildOrderStateMachine_UnknownStatus(t *testing.T) {
	_, err := BuildOrderStateMachine("shipped", nil)
	assert.True(t, errors.Is(err, domainwf.ErrInvalidState))
}

func TestTriggerFor_UnknownStatus(t *testing.T) {
	_, err := triggerFor("shipped")
	assert.Error(t, err)
}

func TestParseReversionPolicy(t *testing.T) {
	p, err := ParseReversionPolicy("")
	require.NoError(t, err)
	assert.Equal(t, ReversionRecompute, p)

	p, err = ParseReversionPolicy("always_reset")
	require.NoError(t, err)
	assert.Equal(t, ReversionAlwaysReset, p)

	_, err = ParseReversionPolicy("never")
	assert.Error(t, err)
}
