package keycodes

import "testing"

func TestLookup(t *testing.T) {
	cases := []struct {
		name string
		want Key
		ok   bool
	}{
		{"KEY_ESC", KeyEsc, true},
		{"esc", KeyEsc, true},
		{"CapsLock", KeyCapsLock, true},
		{"KEY_CAPSLOCK", KeyCapsLock, true},
		{"nonsense", 0, false},
		{"", 0, false},
	}
	for _, c := range cases {
		got, ok := Lookup(c.name)
		if ok != c.ok {
			t.Errorf("Lookup(%q) ok = %v, want %v", c.name, ok, c.ok)
			continue
		}
		if ok && got != c.want {
			t.Errorf("Lookup(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestAllContainsNamedKeys(t *testing.T) {
	all := All()
	if len(all) == 0 {
		t.Fatal("All() returned no keys")
	}
	seen := make(map[Key]bool, len(all))
	for _, k := range all {
		seen[k] = true
	}
	if !seen[KeyA] || !seen[KeyZ] || !seen[KeySpace] {
		t.Error("All() missing expected representative keys A/Z/SPACE")
	}
}

func TestStringUnknownKey(t *testing.T) {
	var k Key = 0xFFFF
	if got := k.String(); got != "KEY_UNKNOWN" {
		t.Errorf("String() for unknown key = %q, want KEY_UNKNOWN", got)
	}
}
