package task

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/san-kum/nmpc/internal/dynamo"
	"github.com/san-kum/nmpc/internal/mpc"
	"github.com/san-kum/nmpc/internal/solver"
)

// StateVersion is written into every frozen envelope. Thaw rejects other
// versions.
const StateVersion = 1

// envelope is the frozen task. Only mutable state lives here; the static
// configuration is supplied to New again on restore.
type envelope struct {
	Version      uint      `cbor:"1,keyasint"`
	Iterate      []float64 `cbor:"2,keyasint"`
	Warm         bool      `cbor:"3,keyasint"`
	Error        []float64 `cbor:"4,keyasint"`
	ElapsedNanos int64     `cbor:"5,keyasint"`
	LastOutput   []float64 `cbor:"6,keyasint,omitempty"`
	FirstRun     bool      `cbor:"7,keyasint"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Freeze serialises the controller's mutable state and the first-run flag.
func (t *Task[I]) Freeze() ([]byte, error) {
	s := t.ctrl.MarshalState()
	env := envelope{
		Version:      StateVersion,
		Iterate:      s.Cache.Iterate,
		Warm:         s.Cache.Warm,
		Error:        s.Error,
		ElapsedNanos: int64(s.Elapsed),
		LastOutput:   s.LastOutput,
		FirstRun:     t.firstRun,
	}
	data, err := encMode.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: encode: %v", dynamo.ErrSerialization, err)
	}
	return data, nil
}

// Thaw restores state produced by Freeze on a task built from the same
// configuration. On error the task is left unchanged.
func (t *Task[I]) Thaw(data []byte) error {
	var env envelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%w: decode: %v", dynamo.ErrSerialization, err)
	}
	if env.Version != StateVersion {
		return fmt.Errorf("%w: state version %d, want %d", dynamo.ErrSerialization, env.Version, StateVersion)
	}
	err := t.ctrl.UnmarshalState(mpc.Snapshot{
		Cache:      solver.CacheState{Iterate: env.Iterate, Warm: env.Warm},
		Error:      env.Error,
		Elapsed:    time.Duration(env.ElapsedNanos),
		LastOutput: env.LastOutput,
	})
	if err != nil {
		return err
	}
	t.firstRun = env.FirstRun
	return nil
}
