package license

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEntitlements(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"blank segments dropped", "Mod A, , Mod B,", []string{"Mod A", "Mod B"}},
		{"duplicates kept", "Mod A,Mod A", []string{"Mod A", "Mod A"}},
		{"empty", "", nil},
		{"only separators", " , ,", nil},
		{"inner spaces kept", "  Big Mod  ", []string{"Big Mod"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseEntitlements(tt.raw))
		})
	}
}

func TestGenerateSerialKey(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key := GenerateSerialKey()
		assert.Regexp(t, `^[0-9A-F]{32}$`, key)
		assert.False(t, seen[key])
		seen[key] = true
	}
}
