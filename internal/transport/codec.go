package transport

import (
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/dshills/uisync/internal/invoke"
)

// Call is a decoded invocation as the client sees it.
type Call struct {
	Function  string
	Target    string
	Arguments []any
}

// EncodeBatch encodes invocations as
//
//	[{"function": "setAttr", "target": "name", "arguments": ["value", "Ada"]}, ...]
//
// A global invocation has a null target. Encoding fails when a target is
// not attached to a page.
func EncodeBatch(batch []invoke.Invocation) ([]byte, error) {
	out := []byte(`[]`)
	for _, inv := range batch {
		id, err := inv.TargetID()
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", inv, err)
		}
		item, err := sjson.SetBytes([]byte(`{}`), "function", inv.Function())
		if err != nil {
			return nil, err
		}
		if id == "" {
			item, err = sjson.SetRawBytes(item, "target", []byte("null"))
		} else {
			item, err = sjson.SetBytes(item, "target", id)
		}
		if err != nil {
			return nil, err
		}
		args := inv.Args()
		if args == nil {
			args = []any{}
		}
		if item, err = sjson.SetBytes(item, "arguments", args); err != nil {
			return nil, fmt.Errorf("encode %s: %w", inv, err)
		}
		if out, err = sjson.SetRawBytes(out, "-1", item); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DecodeBatch parses an "invoke" payload.
func DecodeBatch(data []byte) ([]Call, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("decode batch: invalid JSON")
	}
	res := gjson.ParseBytes(data)
	if !res.IsArray() {
		return nil, fmt.Errorf("decode batch: want array, got %s", res.Type)
	}
	var calls []Call
	for _, item := range res.Array() {
		call := Call{
			Function: item.Get("function").String(),
			Target:   item.Get("target").String(),
		}
		for _, arg := range item.Get("arguments").Array() {
			call.Arguments = append(call.Arguments, arg.Value())
		}
		calls = append(calls, call)
	}
	return calls, nil
}
