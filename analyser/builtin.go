package analyser

import (
	"fmt"

	"github.com/creastat/descriptorstore"
	"github.com/creastat/descriptorstore/model"
	"github.com/creastat/descriptorstore/types"
	"github.com/google/uuid"
)

func vector(name string, kind types.Kind) *Func {
	return New(name, func(params map[string]string) (model.Descriptor, error) {
		n, err := dimensions(params)
		if err != nil {
			return nil, err
		}
		t, err := types.VectorOf(kind, n)
		if err != nil {
			return nil, err
		}
		return model.NewVector(uuid.Nil, Zero(t)), nil
	})
}

// FloatVector analyses single precision feature vectors.
func FloatVector() *Func { return vector("FloatVector", types.KindFloatVector) }

// DoubleVector analyses double precision feature vectors.
func DoubleVector() *Func { return vector("DoubleVector", types.KindDoubleVector) }

func IntVector() *Func     { return vector("IntVector", types.KindIntVector) }
func LongVector() *Func    { return vector("LongVector", types.KindLongVector) }
func BooleanVector() *Func { return vector("BooleanVector", types.KindBooleanVector) }

// Scalar analyses single values whose type is given by the "type" parameter.
func Scalar() *Func {
	return New("Scalar", func(params map[string]string) (model.Descriptor, error) {
		raw, ok := params[ParamType]
		if !ok {
			return nil, fmt.Errorf("missing parameter %q: %w", ParamType, descriptorstore.ErrInvalidConfig)
		}
		t, err := types.ParseType(raw)
		if err != nil {
			return nil, err
		}
		if t.IsVector() {
			return nil, fmt.Errorf("scalar of vector type %s: %w", t, descriptorstore.ErrInvalidConfig)
		}
		return model.NewScalar(uuid.Nil, Zero(t)), nil
	})
}

// Text analyses free text that backends index for full-text search.
func Text() *Func {
	return New("Text", func(map[string]string) (model.Descriptor, error) {
		return model.NewScalar(uuid.Nil, types.NewText("")), nil
	})
}

// Struct analyses descriptors whose layout is given by the "layout"
// parameter, e.g. "path:String,size:Long".
func Struct() *Func {
	return New("Struct", func(params map[string]string) (model.Descriptor, error) {
		raw, ok := params[ParamLayout]
		if !ok {
			return nil, fmt.Errorf("missing parameter %q: %w", ParamLayout, descriptorstore.ErrInvalidConfig)
		}
		layout, err := model.ParseLayout(raw)
		if err != nil {
			return nil, err
		}
		return Prototype(layout)
	})
}

// Prototype builds an empty struct descriptor with the given layout.
func Prototype(layout model.Layout) (*model.Struct, error) {
	values := make(map[string]types.Value, len(layout))
	for _, a := range layout {
		values[a.Name] = Zero(a.Type)
	}
	return model.NewStruct(uuid.Nil, uuid.Nil, layout, values)
}

func fixed(name string, layout model.Layout) *Func {
	return New(name, func(map[string]string) (model.Descriptor, error) {
		return Prototype(layout)
	})
}

// Layouts of the named metadata analysers.
var (
	FileSourceLayout = model.Layout{
		{Name: "path", Type: types.String},
		{Name: "size", Type: types.Long},
	}
	TemporalLayout = model.Layout{
		{Name: "start", Type: types.Long},
		{Name: "end", Type: types.Long},
	}
	MediaDimensionsLayout = model.Layout{
		{Name: "width", Type: types.Int},
		{Name: "height", Type: types.Int},
	}
	LabelLayout = model.Layout{
		{Name: "label", Type: types.String},
		{Name: "confidence", Type: types.Float},
	}
	VideoSourceLayout = model.Layout{
		{Name: "width", Type: types.Int},
		{Name: "height", Type: types.Int},
		{Name: "duration", Type: types.Long},
		{Name: "fps", Type: types.Double},
		{Name: "channels", Type: types.Int},
		{Name: "sampleRate", Type: types.Int},
		{Name: "sampleSize", Type: types.Int},
	}
	Rectangle2DLayout = model.Layout{
		{Name: "leftX", Type: types.Int},
		{Name: "leftY", Type: types.Int},
		{Name: "width", Type: types.Int},
		{Name: "height", Type: types.Int},
	}
)

// FileSourceMetadata describes the file a retrievable was read from.
func FileSourceMetadata() *Func { return fixed("FileSourceMetadata", FileSourceLayout) }

// TemporalMetadata holds the start and end of a segment in nanoseconds.
func TemporalMetadata() *Func { return fixed("TemporalMetadata", TemporalLayout) }

// VideoSourceMetadata holds the stream properties of a video source.
func VideoSourceMetadata() *Func { return fixed("VideoSourceMetadata", VideoSourceLayout) }

func MediaDimensions() *Func { return fixed("MediaDimensions", MediaDimensionsLayout) }
func Label() *Func           { return fixed("Label", LabelLayout) }
func Rectangle2D() *Func     { return fixed("Rectangle2D", Rectangle2DLayout) }
