package installer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Lynx96-creator/ets2-mod-api/internal/errors"
)

func TestExtractContentID(t *testing.T) {
	tests := []struct {
		locator string
		want    string
	}{
		{"https://drive.google.com/file/d/1AbC-_xyz/view?usp=sharing", "1AbC-_xyz"},
		{"https://drive.google.com/file/d/1AbC/", "1AbC"},
		{"https://drive.google.com/file/d/1AbC", "1AbC"},
		{"https://drive.google.com/open?id=XYZ789&authuser=0", "XYZ789"},
		{"https://drive.google.com/uc?export=download&id=XYZ789", "XYZ789"},
		{"https://drive.google.com/file/d/PATH/view?id=QUERY", "PATH"},
		{"  https://drive.google.com/file/d/TRIM/view  ", "TRIM"},
	}
	for _, tt := range tests {
		t.Run(tt.locator, func(t *testing.T) {
			got, err := ExtractContentID(tt.locator)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractContentID_Unrecognized(t *testing.T) {
	for _, locator := range []string{
		"",
		"https://example.com/mods/a.scs",
		"https://drive.google.com/file/d//view",
		"https://drive.google.com/open?id=&x=1",
	} {
		_, err := ExtractContentID(locator)
		assert.ErrorIs(t, err, apperrors.ErrLocatorUnrecognized, locator)
	}
}
