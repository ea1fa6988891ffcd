package inputdispatch

// Standard Windows virtual-key codes for the four supported modifiers,
// matching the VK_* constants the platform/windows SendInput path
// already uses for MapVirtualKeyW scan-code lookups.
const (
	vkControl = 0x11
	vkMenu    = 0x12 // Alt
	vkShift   = 0x10
	vkLWin    = 0x5B
)

// modifierOrder is the canonical press order: Ctrl, Alt, Shift, Win.
// Release happens in reverse.
var modifierOrder = []string{"ctrl", "alt", "shift", "win"}

func modifierVK(name string) (uint16, bool) {
	switch name {
	case "ctrl":
		return vkControl, true
	case "alt":
		return vkMenu, true
	case "shift":
		return vkShift, true
	case "win":
		return vkLWin, true
	default:
		return 0, false
	}
}

// orderedModifiers returns the subset of modifierOrder present in the
// requested set, preserving the canonical press order.
func orderedModifiers(requested []string) []string {
	want := make(map[string]bool, len(requested))
	for _, m := range requested {
		want[m] = true
	}
	var out []string
	for _, m := range modifierOrder {
		if want[m] {
			out = append(out, m)
		}
	}
	return out
}
