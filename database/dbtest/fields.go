// Package dbtest holds the contract tests every backend runs against itself.
package dbtest

import (
	"github.com/creastat/descriptorstore/model"
	"github.com/creastat/descriptorstore/types"
	"github.com/google/uuid"
)

// Field is a database.Field with a fixed prototype.
type Field struct {
	FieldName string
	Params    map[string]string
	Proto     model.Descriptor
}

func (f Field) Name() string                         { return f.FieldName }
func (f Field) Parameters() map[string]string        { return f.Params }
func (f Field) Prototype() (model.Descriptor, error) { return f.Proto, nil }

// FloatVectorField returns a field of float vectors with n dimensions.
func FloatVectorField(name string, n int) Field {
	return Field{FieldName: name, Proto: model.NewVector(uuid.Nil, types.NewFloatVector(make([]float32, n)))}
}

// LongVectorField returns a field of long vectors with n dimensions.
func LongVectorField(name string, n int) Field {
	return Field{FieldName: name, Proto: model.NewVector(uuid.Nil, types.NewLongVector(make([]int64, n)))}
}

// ScalarField returns a field of scalars of the given type.
func ScalarField(name string, zero types.Value) Field {
	return Field{FieldName: name, Proto: model.NewScalar(uuid.Nil, zero)}
}

// FileLayout is the layout of the struct field used by the suite.
var FileLayout = model.Layout{
	{Name: "path", Type: types.String},
	{Name: "size", Type: types.Long},
}

// StructField returns a field of file metadata structs.
func StructField(name string) Field {
	proto, err := model.NewStruct(uuid.Nil, uuid.Nil, FileLayout, map[string]types.Value{
		"path": types.NewString(""),
		"size": types.NewLong(0),
	})
	if err != nil {
		panic(err)
	}
	return Field{FieldName: name, Proto: proto}
}

// FileMetadata builds a struct descriptor for StructField.
func FileMetadata(rid uuid.UUID, path string, size int64) *model.Struct {
	d, err := model.NewStruct(uuid.New(), rid, FileLayout, map[string]types.Value{
		"path": types.NewString(path),
		"size": types.NewLong(size),
	})
	if err != nil {
		panic(err)
	}
	return d
}
