package event

// Modifiers is the set of modifier keys held during a mouse or key event.
type Modifiers uint8

// Modifier key bits.
const (
	ModShift Modifiers = 1 << iota
	ModCtrl
	ModAlt
	ModMeta
)

// Has reports whether all bits of m2 are set in m.
func (m Modifiers) Has(m2 Modifiers) bool { return m&m2 == m2 }

// MouseEvent reports a click or other pointer interaction.
type MouseEvent struct {
	*Base
	X, Y   int
	Button int
	Keys   Modifiers
}

// KeyEvent reports a key press.
type KeyEvent struct {
	*Base
	Key  string
	Code int
	Keys Modifiers
}

// InputEvent reports a changed value of an input component.
type InputEvent struct {
	*Base
	Value    string
	Previous string
}

// CheckEvent reports a toggled checkbox or radio.
type CheckEvent struct {
	*Base
	Checked bool
}

// SelectEvent reports a changed selection. Items are the selected
// components, resolved through the page.
type SelectEvent struct {
	*Base
	Items []Target
}

// ScrollEvent reports a scroll position.
type ScrollEvent struct {
	*Base
	Top, Left int
}

// DropEvent reports a component dropped onto the event target.
type DropEvent struct {
	*Base
	X, Y int
}

// Dragged returns the component that was dropped.
func (e *DropEvent) Dragged() Target { return e.RelatedTarget() }

// OpenEvent reports a component opened or closed.
type OpenEvent struct {
	*Base
	Open bool
}

var mouseFields = []Field{
	IntField("x", false, func(e *MouseEvent, v int) { e.X = v }),
	IntField("y", false, func(e *MouseEvent, v int) { e.Y = v }),
	IntField("button", false, func(e *MouseEvent, v int) { e.Button = v }),
	IntField("keys", false, func(e *MouseEvent, v int) { e.Keys = Modifiers(v) }),
}

var keyFields = []Field{
	StringField("key", false, func(e *KeyEvent, v string) { e.Key = v }),
	IntField("code", false, func(e *KeyEvent, v int) { e.Code = v }),
	IntField("keys", false, func(e *KeyEvent, v int) { e.Keys = Modifiers(v) }),
}

var inputFields = []Field{
	StringField("value", true, func(e *InputEvent, v string) { e.Value = v }),
	StringField("previous", false, func(e *InputEvent, v string) { e.Previous = v }),
}

var checkFields = []Field{
	BoolField("checked", true, func(e *CheckEvent, v bool) { e.Checked = v }),
}

var selectFields = []Field{
	TargetsField("items", true, func(e *SelectEvent, v []Target) { e.Items = v }),
}

var scrollFields = []Field{
	IntField("top", false, func(e *ScrollEvent, v int) { e.Top = v }),
	IntField("left", false, func(e *ScrollEvent, v int) { e.Left = v }),
}

var dropFields = []Field{
	IntField("x", false, func(e *DropEvent, v int) { e.X = v }),
	IntField("y", false, func(e *DropEvent, v int) { e.Y = v }),
}

var openFields = []Field{
	BoolField("open", true, func(e *OpenEvent, v bool) { e.Open = v }),
}

// MouseVariant returns the MouseEvent variant registered under name.
func MouseVariant(name string) Variant {
	return Variant{Name: name, New: func(b *Base) Event { return &MouseEvent{Base: b} }, Fields: mouseFields}
}

// KeyVariant returns the KeyEvent variant registered under name.
func KeyVariant(name string) Variant {
	return Variant{Name: name, New: func(b *Base) Event { return &KeyEvent{Base: b} }, Fields: keyFields}
}

// InputVariant returns the InputEvent variant registered under name.
func InputVariant(name string) Variant {
	return Variant{Name: name, New: func(b *Base) Event { return &InputEvent{Base: b} }, Fields: inputFields}
}

// CheckVariant returns the CheckEvent variant registered under name.
func CheckVariant(name string) Variant {
	return Variant{Name: name, New: func(b *Base) Event { return &CheckEvent{Base: b} }, Fields: checkFields}
}

// SelectVariant returns the SelectEvent variant registered under name.
func SelectVariant(name string) Variant {
	return Variant{Name: name, New: func(b *Base) Event { return &SelectEvent{Base: b} }, Fields: selectFields}
}

// ScrollVariant returns the ScrollEvent variant registered under name.
func ScrollVariant(name string) Variant {
	return Variant{Name: name, New: func(b *Base) Event { return &ScrollEvent{Base: b} }, Fields: scrollFields}
}

// DropVariant returns the DropEvent variant registered under name.
func DropVariant(name string) Variant {
	return Variant{Name: name, New: func(b *Base) Event { return &DropEvent{Base: b} }, Fields: dropFields}
}

// OpenVariant returns the OpenEvent variant registered under name.
func OpenVariant(name string) Variant {
	return Variant{Name: name, New: func(b *Base) Event { return &OpenEvent{Base: b} }, Fields: openFields}
}

// GenericVariant returns a variant that produces a plain Base event.
func GenericVariant(name string) Variant {
	return Variant{Name: name}
}

// DefaultRegistry returns a registry holding the built-in variants.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, v := range []Variant{
		MouseVariant("onClick"),
		MouseVariant("onDoubleClick"),
		MouseVariant("onRightClick"),
		MouseVariant("onMouse*"),
		KeyVariant("onKey*"),
		KeyVariant("onOK"),
		KeyVariant("onCancel"),
		InputVariant("onChange"),
		InputVariant("onChanging"),
		CheckVariant("onCheck"),
		SelectVariant("onSelect"),
		ScrollVariant("onScroll"),
		DropVariant("onDrop"),
		OpenVariant("onOpen"),
		GenericVariant("onFocus"),
		GenericVariant("onBlur"),
		GenericVariant("onClose"),
		{Name: "onTimer", Deferred: true},
	} {
		r.MustRegister(v)
	}
	return r
}
