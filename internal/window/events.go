package window

import (
	"fmt"
	"time"
)

// KeyKind is the phase of a synthetic keystroke.
type KeyKind int

const (
	KeyPressed KeyKind = iota
	KeyTyped
	KeyReleased
)

func (k KeyKind) String() string {
	switch k {
	case KeyPressed:
		return "pressed"
	case KeyTyped:
		return "typed"
	case KeyReleased:
		return "released"
	default:
		return "unknown"
	}
}

// Modifier is a bit mask of held modifier keys.  The values follow the
// conventional extended "down mask" layout.
type Modifier uint32

const (
	ModShift Modifier = 1 << 6
	ModCtrl  Modifier = 1 << 7
	ModMeta  Modifier = 1 << 8
	ModAlt   Modifier = 1 << 9
)

// Has reports whether every bit of m2 is set in m.
func (m Modifier) Has(m2 Modifier) bool { return m&m2 == m2 }

// Undefined key code and key char markers.
const (
	CodeUndefined rune = 0
	CharUndefined rune = 0xFFFF
)

// KeyEvent is one synthetic keyboard event aimed at a window.
type KeyEvent struct {
	Kind      KeyKind
	When      time.Time
	Modifiers Modifier
	Code      rune // virtual key code; CodeUndefined for typed events
	Char      rune // character; CharUndefined for pressed/released
}

func (e KeyEvent) String() string {
	key := e.Char
	if e.Kind != KeyTyped {
		key = e.Code
	}
	return fmt.Sprintf("%s %q mods=%#x", e.Kind, key, uint32(e.Modifiers))
}

// Shortcut is a modifier chord bound to one key, e.g. Ctrl+Alt+F.
type Shortcut struct {
	Code      rune
	Char      rune
	Modifiers Modifier
}

// Events expands the shortcut into the ordered press, typed, release
// triple.  now stamps every event; nil means time.Now.
func (s Shortcut) Events(now func() time.Time) []KeyEvent {
	if now == nil {
		now = time.Now
	}
	return []KeyEvent{
		{Kind: KeyPressed, When: now(), Modifiers: s.Modifiers, Code: s.Code, Char: CharUndefined},
		{Kind: KeyTyped, When: now(), Modifiers: s.Modifiers, Code: CodeUndefined, Char: s.Char},
		{Kind: KeyReleased, When: now(), Modifiers: s.Modifiers, Code: s.Code, Char: CharUndefined},
	}
}

// The host application's reconnect shortcuts.
var (
	ReconnectData    = Shortcut{Code: 'F', Char: 'F', Modifiers: ModCtrl | ModAlt}
	ReconnectAccount = Shortcut{Code: 'R', Char: 'R', Modifiers: ModCtrl | ModAlt}
)
