package event

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// Field binds one named value of a request payload to an event.
type Field struct {
	// Name is the payload key.
	Name string

	// Required fields abort event construction when missing or invalid.
	// Optional fields keep their zero value instead.
	Required bool

	// Bind stores v on e. page resolves component references.
	Bind func(e Event, v gjson.Result, page Page) error
}

// bindFields applies fields to e from payload. It returns the first failure
// of a required field.
func bindFields(e Event, fields []Field, payload gjson.Result, page Page) error {
	for _, f := range fields {
		v := payload.Get(f.Name)
		if !v.Exists() || v.Type == gjson.Null {
			if f.Required {
				return &BindError{Event: e.Name(), Field: f.Name, Err: ErrMissingField}
			}
			continue
		}
		if err := f.Bind(e, v, page); err != nil && f.Required {
			return &BindError{Event: e.Name(), Field: f.Name, Err: err}
		}
	}
	return nil
}

// as asserts the concrete variant type a field was declared for.
func as[E Event](e Event) (E, error) {
	typed, ok := e.(E)
	if !ok {
		return typed, fmt.Errorf("%w: field declared for %T, event is %T", ErrInvalidVariant, typed, e)
	}
	return typed, nil
}

// IntField binds a JSON number.
func IntField[E Event](name string, required bool, set func(E, int)) Field {
	return Field{Name: name, Required: required, Bind: func(e Event, v gjson.Result, _ Page) error {
		if v.Type != gjson.Number {
			return fmt.Errorf("%w: want number, got %s", ErrFieldType, v.Type)
		}
		typed, err := as[E](e)
		if err != nil {
			return err
		}
		set(typed, int(v.Int()))
		return nil
	}}
}

// StringField binds a JSON string.
func StringField[E Event](name string, required bool, set func(E, string)) Field {
	return Field{Name: name, Required: required, Bind: func(e Event, v gjson.Result, _ Page) error {
		if v.Type != gjson.String {
			return fmt.Errorf("%w: want string, got %s", ErrFieldType, v.Type)
		}
		typed, err := as[E](e)
		if err != nil {
			return err
		}
		set(typed, v.Str)
		return nil
	}}
}

// BoolField binds a JSON boolean.
func BoolField[E Event](name string, required bool, set func(E, bool)) Field {
	return Field{Name: name, Required: required, Bind: func(e Event, v gjson.Result, _ Page) error {
		if v.Type != gjson.True && v.Type != gjson.False {
			return fmt.Errorf("%w: want boolean, got %s", ErrFieldType, v.Type)
		}
		typed, err := as[E](e)
		if err != nil {
			return err
		}
		set(typed, v.Bool())
		return nil
	}}
}

// TargetsField binds an array of component IDs, resolved through the page.
// Any unknown ID fails the field.
func TargetsField[E Event](name string, required bool, set func(E, []Target)) Field {
	return Field{Name: name, Required: required, Bind: func(e Event, v gjson.Result, page Page) error {
		if !v.IsArray() {
			return fmt.Errorf("%w: want array, got %s", ErrFieldType, v.Type)
		}
		if page == nil {
			return ErrNoPage
		}
		typed, err := as[E](e)
		if err != nil {
			return err
		}
		var targets []Target
		var lookupErr error
		v.ForEach(func(_, item gjson.Result) bool {
			t, ok := page.Lookup(item.String())
			if !ok {
				lookupErr = fmt.Errorf("%w: %q", ErrUnknownTarget, item.String())
				return false
			}
			targets = append(targets, t)
			return true
		})
		if lookupErr != nil {
			return lookupErr
		}
		set(typed, targets)
		return nil
	}}
}
