package xrefview

import "github.com/tsawler/qdocgraph/object"

// Aliases onto the object package's value model. The tokenizer and
// byte-level xref/object-stream readers in this package were written
// against a plain map-based Dict; aliasing rather than re-declaring these
// types lets that code keep using Dict, Array, Int, and so on unqualified
// while actually building object.Dict values underneath.
type (
	Object         = object.Object
	ObjectType     = object.ObjectType
	Null           = object.Null
	Bool           = object.Bool
	Int            = object.Int
	Real           = object.Real
	String         = object.String
	Name           = object.Name
	Array          = object.Array
	Dict           = object.Dict
	Stream         = object.Stream
	BufferData     = object.BufferData
	IndirectRef    = object.IndirectRef
	IndirectObject = object.IndirectObject
)

// NewDict returns an empty dictionary, in insertion-order-preserving form.
func NewDict() Dict { return object.NewDict() }
