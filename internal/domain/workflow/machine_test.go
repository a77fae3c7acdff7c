package workflow

import (
	"context"
	"errors"
	"testing"
)

const (
	stateDraft    State = "draft"
	stateOpen     State = "open"
	stateApproved State = "approved"
	stateClosed   State = "closed"
)

func newTestBuilder() StateMachineBuilder {
	return NewBuilder(stateDraft, stateOpen, stateApproved, stateClosed)
}

func TestState_String(t *testing.T) {
	if got := stateDraft.String(); got != "draft" {
		t.Errorf("State.String() = %v, want %v", got, "draft")
	}
}

func TestTrigger_String(t *testing.T) {
	if got := TriggerRequest.String(); got != "REQUEST" {
		t.Errorf("Trigger.String() = %v, want %v", got, "REQUEST")
	}
}

func TestBuilder_Configure(t *testing.T) {
	builder := newTestBuilder()

	config := builder.Configure(stateDraft)
	if config == nil {
		t.Fatal("Configure() returned nil")
	}

	config2 := builder.Configure(stateDraft)
	if config != config2 {
		t.Error("Configure() should return same config for same state")
	}
}

func TestBuilder_ConfigurePanicsOnUnknownState(t *testing.T) {
	builder := newTestBuilder()

	defer func() {
		if r := recover(); r == nil {
			t.Error("Configure() should panic on unknown state")
		}
	}()

	builder.Configure(State("INVALID"))
}

func TestBuilder_PermitPanicsOnUnknownTarget(t *testing.T) {
	builder := newTestBuilder()

	defer func() {
		if r := recover(); r == nil {
			t.Error("Permit() should panic on unknown target state")
		}
	}()

	builder.Configure(stateDraft).Permit(TriggerRequest, State("nowhere"))
}

func TestBuilder_BuildRejectsUnknownInitialState(t *testing.T) {
	builder := newTestBuilder()

	machine, err := builder.Build(State("承認待ち"))
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("Build() error = %v, want ErrInvalidState", err)
	}
	if machine != nil {
		t.Error("Build() should not return a machine for an unknown state")
	}
}

func TestStateConfiguration_Permit(t *testing.T) {
	builder := newTestBuilder()
	builder.Configure(stateDraft).
		Permit(TriggerRequest, stateOpen)

	machine, err := builder.Build(stateDraft)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if !machine.CanFire(TriggerRequest) {
		t.Error("CanFire() should return true for permitted trigger")
	}
	if machine.CanFire(TriggerApprove) {
		t.Error("CanFire() should return false for unconfigured trigger")
	}

	if err := machine.Fire(context.Background(), TriggerRequest); err != nil {
		t.Fatalf("Fire() error = %v", err)
	}
	if machine.State() != stateOpen {
		t.Errorf("State() = %v, want %v", machine.State(), stateOpen)
	}
}

func TestStateMachine_FireInvalidTransition(t *testing.T) {
	builder := newTestBuilder()
	builder.Configure(stateDraft).Permit(TriggerRequest, stateOpen)

	machine, _ := builder.Build(stateDraft)

	err := machine.Fire(context.Background(), TriggerApprove)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Fire() error = %v, want ErrInvalidTransition", err)
	}
	if machine.State() != stateDraft {
		t.Errorf("State() changed to %v after failed Fire()", machine.State())
	}
}

func TestStateMachine_FireFromTerminalState(t *testing.T) {
	builder := newTestBuilder()
	builder.Configure(stateDraft).Permit(TriggerRequest, stateOpen)

	machine, _ := builder.Build(stateClosed)

	err := machine.Fire(context.Background(), TriggerRequest)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Fire() error = %v, want ErrInvalidTransition", err)
	}
	if len(machine.PermittedTriggers()) != 0 {
		t.Error("PermittedTriggers() should be empty for an unconfigured state")
	}
}

func TestStateMachine_GuardsTriedInOrder(t *testing.T) {
	tests := []struct {
		name     string
		hasNext  bool
		expected State
	}{
		{"more steps remain", true, stateOpen},
		{"last step", false, stateApproved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hasNext := tt.hasNext
			builder := newTestBuilder()
			builder.Configure(stateOpen).
				PermitIf(TriggerApprove, stateOpen, func(ctx context.Context) bool { return hasNext }).
				Permit(TriggerApprove, stateApproved)

			machine, _ := builder.Build(stateOpen)
			if err := machine.Fire(context.Background(), TriggerApprove); err != nil {
				t.Fatalf("Fire() error = %v", err)
			}
			if machine.State() != tt.expected {
				t.Errorf("State() = %v, want %v", machine.State(), tt.expected)
			}
		})
	}
}

func TestStateMachine_AllGuardsFail(t *testing.T) {
	builder := newTestBuilder()
	builder.Configure(stateDraft).
		PermitIf(TriggerRequest, stateOpen, func(ctx context.Context) bool { return false })

	machine, _ := builder.Build(stateDraft)

	err := machine.Fire(context.Background(), TriggerRequest)
	if !errors.Is(err, ErrGuardFailed) {
		t.Errorf("Fire() error = %v, want ErrGuardFailed", err)
	}
	if !machine.CanFire(TriggerRequest) {
		t.Error("CanFire() ignores guards and should return true")
	}
}

func TestStateMachine_GuardReceivesContext(t *testing.T) {
	type key struct{}
	builder := newTestBuilder()
	builder.Configure(stateDraft).
		PermitIf(TriggerRequest, stateOpen, func(ctx context.Context) bool {
			return ctx.Value(key{}) == "ok"
		})

	machine, _ := builder.Build(stateDraft)
	ctx := context.WithValue(context.Background(), key{}, "ok")

	if err := machine.Fire(ctx, TriggerRequest); err != nil {
		t.Fatalf("Fire() error = %v", err)
	}
}

func TestBuilder_BuiltMachinesAreIndependent(t *testing.T) {
	builder := newTestBuilder()
	builder.Configure(stateDraft).Permit(TriggerRequest, stateOpen)

	first, _ := builder.Build(stateDraft)

	// Configuring after Build must not change machines already built
	builder.Configure(stateDraft).Permit(TriggerCancel, stateClosed)
	second, _ := builder.Build(stateDraft)

	if first.CanFire(TriggerCancel) {
		t.Error("machine built earlier should not see later configuration")
	}
	if !second.CanFire(TriggerCancel) {
		t.Error("machine built later should see the new configuration")
	}

	_ = first.Fire(context.Background(), TriggerRequest)
	if second.State() != stateDraft {
		t.Error("firing one machine should not affect another")
	}
}

func TestStateMachine_PermittedTriggersSorted(t *testing.T) {
	builder := newTestBuilder()
	builder.Configure(stateOpen).
		Permit(TriggerReject, stateClosed).
		Permit(TriggerApprove, stateApproved).
		Permit(TriggerCancel, stateDraft)

	machine, _ := builder.Build(stateOpen)
	got := machine.PermittedTriggers()
	want := []Trigger{TriggerApprove, TriggerCancel, TriggerReject}

	if len(got) != len(want) {
		t.Fatalf("PermittedTriggers() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("PermittedTriggers()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
