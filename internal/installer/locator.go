package installer

import (
	"strings"

	apperrors "github.com/Lynx96-creator/ets2-mod-api/internal/errors"
)

// ExtractContentID returns the remote file id carried by a share link. Two
// shapes are recognised: ".../file/d/<id>/..." and "...id=<id>&...". The path
// shape wins when both are present.
func ExtractContentID(locator string) (string, error) {
	locator = strings.TrimSpace(locator)

	var id string
	if _, rest, ok := strings.Cut(locator, "/file/d/"); ok {
		id = cutAny(rest, "/?#")
	} else if _, rest, ok := strings.Cut(locator, "id="); ok {
		id = cutAny(rest, "&#")
	}

	if id == "" {
		return "", apperrors.Wrap(apperrors.ErrLocatorUnrecognized, "no file id in link", nil).
			WithContext("locator", locator)
	}
	return id, nil
}

func cutAny(s, seps string) string {
	if i := strings.IndexAny(s, seps); i >= 0 {
		return s[:i]
	}
	return s
}
