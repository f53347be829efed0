// Package installer places mod artifacts in the game's mod directory.
//
// An artifact lives at <install root>/<internal name><extension>. Downloads are
// staged in a temporary file beside the destination, checked against a minimum
// size and renamed into place, so a failed install never leaves a partial
// artifact behind.
//
// File protection hides the artifact and makes it read-only using the
// platform's file attributes. It is a deterrent against casual copying and
// deletion; anyone with access to the account can undo it.
package installer
