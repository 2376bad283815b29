package hclgraph

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/agoscinski/colvar/internal/config"
	"github.com/agoscinski/colvar/internal/ctxlog"
)

// Converter is the HCL-specific implementation of the config.Converter
// interface. Attribute expressions are evaluated without a variable scope;
// node bodies are literal by design.
type Converter struct{}

// NewConverter creates a new HCL data converter.
func NewConverter() *Converter {
	return &Converter{}
}

// DecodeBody evaluates each attribute of the node and assigns it to the
// struct field carrying the matching `cty` tag. Fields without a matching
// attribute keep their zero or pre-set default; attributes without a
// matching field are configuration errors, catching typos early.
func (c *Converter) DecodeBody(ctx context.Context, target any, n *config.Node) error {
	logger := ctxlog.FromContext(ctx)

	ptr := reflect.ValueOf(target)
	if ptr.Kind() != reflect.Ptr || ptr.Elem().Kind() != reflect.Struct {
		panic(fmt.Sprintf("hclgraph: DecodeBody target must be a struct pointer, got %T", target))
	}
	elem := ptr.Elem()
	goType := elem.Type()

	fieldByTag := make(map[string]reflect.Value, goType.NumField())
	for i := 0; i < goType.NumField(); i++ {
		tag := strings.Split(goType.Field(i).Tag.Get("cty"), ",")[0]
		if tag == "" || tag == "-" {
			continue
		}
		fieldByTag[tag] = elem.Field(i)
	}

	for name, expr := range n.Attributes {
		field, ok := fieldByTag[name]
		if !ok {
			return fmt.Errorf("node %q: unsupported attribute %q for kind %q", n.Label, name, n.Kind)
		}

		val, diags := expr.Value(nil)
		if diags.HasErrors() {
			return fmt.Errorf("node %q: attribute %q: %w", n.Label, name, diags)
		}

		wantType, err := gocty.ImpliedType(field.Addr().Interface())
		if err != nil {
			return fmt.Errorf("node %q: attribute %q: unsupported target type %s: %w", n.Label, name, field.Type(), err)
		}
		val, err = convert.Convert(val, wantType)
		if err != nil {
			return fmt.Errorf("node %q: attribute %q: %w", n.Label, name, err)
		}
		if err := gocty.FromCtyValue(val, field.Addr().Interface()); err != nil {
			return fmt.Errorf("node %q: attribute %q: %w", n.Label, name, err)
		}
	}

	logger.Debug("Decoded node body.", "kind", n.Kind, "label", n.Label, "attributes", len(n.Attributes))
	return nil
}
