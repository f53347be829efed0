// Package app wires configuration, the record store, licensing, the installer
// and the session coordinator together, and runs the HTTP agent.
package app
