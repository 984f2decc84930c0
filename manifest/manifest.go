package manifest

import (
	"fmt"
	"math"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// Document is the decoded form of one manifest file. A manifest declares
// exactly one root piece.
type Document struct {
	Piece *PieceBlock `hcl:"piece,block"`
}

// PieceBlock declares the expected shape of one piece.
type PieceBlock struct {
	Name      string       `hcl:"name,label"`
	Extras    cty.Value    `hcl:"extras,optional"`
	Commands  []ItemBlock  `hcl:"command,block"`
	Listeners []ItemBlock  `hcl:"listener,block"`
	Loops     []LoopBlock  `hcl:"loop,block"`
	Children  []PieceBlock `hcl:"piece,block"`
}

// ItemBlock declares one command or listener identity.
type ItemBlock struct {
	Name string `hcl:"name,label"`
}

// LoopBlock declares one periodic loop and its tick interval.
type LoopBlock struct {
	Name  string `hcl:"name,label"`
	Every string `hcl:"every"`
}

// Load parses and decodes a manifest file.
func Load(path string) (*Document, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse manifest file %s: %w", path, diags)
	}
	return decode(file)
}

// Parse decodes a manifest from an in-memory buffer; filename is used only
// in diagnostics.
func Parse(src []byte, filename string) (*Document, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", filename, diags)
	}
	return decode(file)
}

func decode(file *hcl.File) (*Document, error) {
	var doc Document
	if diags := gohcl.DecodeBody(file.Body, nil, &doc); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode manifest: %w", diags)
	}
	if doc.Piece == nil {
		return nil, fmt.Errorf("manifest declares no root piece")
	}
	return &doc, nil
}

// ExtrasMap converts the block's extras expression into native Go values.
// A manifest without an extras attribute yields an empty map.
func (b *PieceBlock) ExtrasMap() (map[string]any, error) {
	if b.Extras.IsNull() {
		return map[string]any{}, nil
	}
	ty := b.Extras.Type()
	if !ty.IsObjectType() && !ty.IsMapType() {
		return nil, fmt.Errorf("piece %q: extras must be an object, got %s", b.Name, ty.FriendlyName())
	}
	out := make(map[string]any)
	for key, val := range b.Extras.AsValueMap() {
		goVal, err := ctyToGo(val)
		if err != nil {
			return nil, fmt.Errorf("piece %q: extras key %q: %w", b.Name, key, err)
		}
		out[key] = goVal
	}
	return out, nil
}

// ctyToGo converts a cty value into the closest native Go value. Integral
// numbers come back as int64, everything else as float64.
func ctyToGo(v cty.Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil
	case ty == cty.Bool:
		return v.True(), nil
	case ty == cty.Number:
		f, _ := v.AsBigFloat().Float64()
		if f == math.Trunc(f) {
			return int64(f), nil
		}
		return f, nil
	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any)
		for key, elem := range v.AsValueMap() {
			goVal, err := ctyToGo(elem)
			if err != nil {
				return nil, err
			}
			out[key] = goVal
		}
		return out, nil
	case ty.IsTupleType() || ty.IsListType() || ty.IsSetType():
		var out []any
		for _, elem := range v.AsValueSlice() {
			goVal, err := ctyToGo(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, goVal)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported extras value type %s", ty.FriendlyName())
	}
}
