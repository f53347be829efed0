package store

import (
	"fmt"
	"strings"

	"github.com/Lynx96-creator/ets2-mod-api/pkg/contracts/domain"
)

// Column headers of the record spreadsheet
const (
	ColEmail        = "Email"
	ColPassword     = "Password"
	ColDevice       = "MAC Address"
	ColEntitlements = "User Mods"
	ColModName      = "Mod Name"
	ColInternalName = "Mod Internal Name"
	ColLocator      = "Google Drive Link"
	ColSerialKey    = "Serial Key"
)

// AccountHeaders and CatalogHeaders list the columns each table needs
var (
	AccountHeaders = []string{ColEmail, ColPassword, ColDevice, ColEntitlements}
	CatalogHeaders = []string{ColModName, ColInternalName, ColLocator, ColSerialKey}
)

// header maps a column name to its zero-based index
type header map[string]int

func parseHeader(row []string) header {
	h := make(header, len(row))
	for i, name := range row {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := h[name]; !dup {
			h[name] = i
		}
	}
	return h
}

func (h header) require(names ...string) error {
	var missing []string
	for _, name := range names {
		if _, ok := h[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (h header) cell(row []string, name string) string {
	i, ok := h[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (h header) account(row []string) domain.Account {
	return domain.Account{
		Email:             h.cell(row, ColEmail),
		Secret:            h.cell(row, ColPassword),
		DeviceFingerprint: h.cell(row, ColDevice),
		Entitlements:      h.cell(row, ColEntitlements),
	}
}

func (h header) entry(row []string) domain.CatalogEntry {
	return domain.CatalogEntry{
		DisplayName:  h.cell(row, ColModName),
		InternalName: h.cell(row, ColInternalName),
		Locator:      h.cell(row, ColLocator),
		SerialKey:    h.cell(row, ColSerialKey),
	}
}

// findAccountRow returns the zero-based index into rows of the first account
// whose email matches, comparing case-insensitively. Row 0 is the header.
func (h header) findAccountRow(rows [][]string, email string) int {
	email = strings.TrimSpace(email)
	for i := 1; i < len(rows); i++ {
		if strings.EqualFold(h.cell(rows[i], ColEmail), email) {
			return i
		}
	}
	return -1
}

// findEntryRow returns the index of the first catalog row with the display name
func (h header) findEntryRow(rows [][]string, displayName string) int {
	displayName = strings.TrimSpace(displayName)
	for i := 1; i < len(rows); i++ {
		if h.cell(rows[i], ColModName) == displayName {
			return i
		}
	}
	return -1
}

func (h header) entries(rows [][]string) []domain.CatalogEntry {
	var out []domain.CatalogEntry
	for i := 1; i < len(rows); i++ {
		e := h.entry(rows[i])
		if e == (domain.CatalogEntry{}) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// columnLetter converts a zero-based column index to A1 notation letters
func columnLetter(index int) string {
	var letters []byte
	for n := index + 1; n > 0; n = (n - 1) / 26 {
		letters = append([]byte{byte('A' + (n-1)%26)}, letters...)
	}
	return string(letters)
}

// quoteSheet renders a sheet name for A1 notation. Names with spaces or
// punctuation are only valid quoted, with embedded quotes doubled.
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
