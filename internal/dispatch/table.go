// Package dispatch classifies an inbound typed request against a
// provider's static DispatchTable and, for transform operations, selects
// the concrete (source protocol -> target protocol) translation.
//
// Grounded on the teacher's trait-object-per-provider plus dense
// per-provider tables shown across internal/runtime/executor (one struct
// per provider implementing the same method set) — generalized here into
// an explicit array-indexed table instead of the teacher's switch-on-name
// dispatch in sdk/cliproxy/service.go's syncCoreAuthFromAuths.
package dispatch

import (
	"fmt"

	"github.com/module-gw/gproxy/internal/constant"
)

// Mode identifies how a given Op is handled by a provider.
type Mode int

const (
	// ModeUnsupported means the provider never implements this Op.
	ModeUnsupported Mode = iota
	// ModeNative means the request flows to the provider unchanged.
	ModeNative
	// ModeTransform means the request must be translated to Target first.
	ModeTransform
)

// OpSpec describes how a single Op is handled by a provider.
type OpSpec struct {
	Mode  Mode
	// Target is only meaningful when Mode == ModeTransform.
	Target constant.Protocol
	Usage  constant.UsageKind
}

// Table is a fixed-size, dense array mapping Op -> OpSpec for one
// provider. It must always have exactly constant.OpCount entries; every
// slot must be populated (an explicit ModeUnsupported zero value counts
// as populated).
type Table [constant.OpCount]OpSpec

// Validate reports an error for the first ModeTransform slot whose Usage
// is a negative (invalid) UsageKind. The table's length is not checked
// here: Table is a fixed-size array of constant.OpCount slots, so the
// compiler already fixes it.
func (t *Table) Validate() error {
	for i := 0; i < constant.OpCount; i++ {
		op := constant.Op(i)
		spec := t[i]
		if spec.Mode == ModeTransform && spec.Target == t[i].Target && spec.Usage < 0 {
			return fmt.Errorf("dispatch: op %s has invalid usage kind", op)
		}
	}
	return nil
}
