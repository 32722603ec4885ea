// Package analyser provides the built-in analysers. An analyser fixes the
// descriptor shape of a field and builds its prototype from the field's
// parameters.
package analyser

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/creastat/descriptorstore"
	"github.com/creastat/descriptorstore/model"
	"github.com/creastat/descriptorstore/types"
	"github.com/google/uuid"
)

// Analyser knows the descriptor type of a field.
type Analyser interface {
	// Name is the factory name fields refer to in configuration.
	Name() string
	// Prototype returns an empty descriptor with the field's layout and types.
	Prototype(params map[string]string) (model.Descriptor, error)
}

// Field parameters read by the built-in analysers.
const (
	ParamDimensions = "dimensions"
	ParamType       = "type"
	ParamLayout     = "layout"
)

// Builtins returns every built-in analyser.
func Builtins() []Analyser {
	return []Analyser{
		FloatVector(),
		DoubleVector(),
		IntVector(),
		LongVector(),
		BooleanVector(),
		Scalar(),
		Text(),
		Struct(),
		FileSourceMetadata(),
		VideoSourceMetadata(),
		TemporalMetadata(),
		MediaDimensions(),
		Label(),
		Rectangle2D(),
	}
}

// Func adapts a function to the Analyser interface.
type Func struct {
	name  string
	proto func(params map[string]string) (model.Descriptor, error)
}

// New creates an analyser named name that builds prototypes with proto.
func New(name string, proto func(params map[string]string) (model.Descriptor, error)) *Func {
	return &Func{name: name, proto: proto}
}

func (f *Func) Name() string { return f.name }

func (f *Func) Prototype(params map[string]string) (model.Descriptor, error) {
	d, err := f.proto(params)
	if err != nil {
		return nil, fmt.Errorf("analyser %s: %w", f.name, err)
	}
	return d, nil
}

func dimensions(params map[string]string) (int, error) {
	raw, ok := params[ParamDimensions]
	if !ok {
		return 0, fmt.Errorf("missing parameter %q: %w", ParamDimensions, descriptorstore.ErrInvalidConfig)
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("parameter %q must be a positive integer, got %q: %w", ParamDimensions, raw, descriptorstore.ErrInvalidConfig)
	}
	return n, nil
}

// Zero returns the zero value of t.
func Zero(t types.Type) types.Value {
	n := t.Dimensions
	switch t.Kind {
	case types.KindString:
		return types.NewString("")
	case types.KindText:
		return types.NewText("")
	case types.KindBoolean:
		return types.NewBoolean(false)
	case types.KindByte:
		return types.NewByte(0)
	case types.KindShort:
		return types.NewShort(0)
	case types.KindInt:
		return types.NewInt(0)
	case types.KindLong:
		return types.NewLong(0)
	case types.KindFloat:
		return types.NewFloat(0)
	case types.KindDouble:
		return types.NewDouble(0)
	case types.KindDatetime:
		return types.NewDatetime(time.Unix(0, 0))
	case types.KindUUID:
		return types.NewUUID(uuid.Nil)
	case types.KindGeography:
		return types.NewGeography(types.NewPoint(0, 0))
	case types.KindBooleanVector:
		return types.NewBooleanVector(make([]bool, n))
	case types.KindIntVector:
		return types.NewIntVector(make([]int32, n))
	case types.KindLongVector:
		return types.NewLongVector(make([]int64, n))
	case types.KindFloatVector:
		return types.NewFloatVector(make([]float32, n))
	case types.KindDoubleVector:
		return types.NewDoubleVector(make([]float64, n))
	}
	return types.Value{}
}
