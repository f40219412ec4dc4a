package mock

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/filecoin-project/go-state-types/cbor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EpiK-Protocol/go-epik-vesting/actors/runtime"
)

var (
	typeOfRuntimeInterface = reflect.TypeOf((*runtime.Runtime)(nil)).Elem()
	typeOfCborUnmarshaler  = reflect.TypeOf((*cbor.Unmarshaler)(nil)).Elem()
	typeOfCborMarshaler    = reflect.TypeOf((*cbor.Marshaler)(nil)).Elem()
)

type Exporter interface {
	Exports() []interface{}
}

// CheckActorExports checks that each exported method can be invoked by the runtime.
// Slot 0 is either empty or a receive hook of the same shape.
func CheckActorExports(t *testing.T, act Exporter) {
	for i, m := range act.Exports() {
		if i == 0 && m == nil { // Send is implicit and has no method body.
			continue
		}
		require.NotNil(t, m, "method %d is nil", i)
		assert.Empty(t, methodShapeError(reflect.TypeOf(m)), "method %d", i)
	}
}

// methodShapeError describes how fn differs from an exported method: a runtime and a
// CBOR-unmarshalable pointer in, a single CBOR-marshalable value out. It is empty when fn fits.
func methodShapeError(fn reflect.Type) string {
	switch {
	case fn.Kind() != reflect.Func:
		return "not a function"
	case fn.NumIn() != 2:
		return fmt.Sprintf("takes %d parameters, want 2", fn.NumIn())
	case fn.In(0) != typeOfRuntimeInterface:
		return fmt.Sprintf("first parameter is %v, want the runtime", fn.In(0))
	case fn.In(1).Kind() != reflect.Ptr || !fn.In(1).Implements(typeOfCborUnmarshaler):
		return fmt.Sprintf("parameter %v is not a CBOR-unmarshalable pointer", fn.In(1))
	case fn.NumOut() != 1:
		return fmt.Sprintf("returns %d values, want 1", fn.NumOut())
	case !fn.Out(0).Implements(typeOfCborMarshaler):
		return fmt.Sprintf("return %v is not CBOR-marshalable", fn.Out(0))
	}
	return ""
}
