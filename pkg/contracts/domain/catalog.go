package domain

import "strings"

// CatalogEntry is one downloadable mod as stored in the record store.
type CatalogEntry struct {
	DisplayName  string `json:"name"`
	InternalName string `json:"internal_name"`
	Locator      string `json:"locator"`
	SerialKey    string `json:"serial_key"`
}

// Listable reports whether the entry may be shown to any account.
// Entries without a display name or a locator are never exposed.
func (e CatalogEntry) Listable() bool {
	return strings.TrimSpace(e.DisplayName) != "" && strings.TrimSpace(e.Locator) != ""
}

// ModView is the presentation form of a visible entry. It never carries the serial key.
type ModView struct {
	Name         string `json:"name"`
	InternalName string `json:"internal_name"`
	Installed    bool   `json:"installed"`
}

// View converts the entry into its presentation form.
func (e CatalogEntry) View(installed bool) ModView {
	return ModView{
		Name:         e.DisplayName,
		InternalName: e.InternalName,
		Installed:    installed,
	}
}
