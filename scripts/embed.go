// Package scripts holds the built-in Risor report scripts.
package scripts

import "embed"

// FS contains report/*.risor. Scripts are addressed by path within it, for
// example "report/kinds.risor".
//
//go:embed report/*.risor
var FS embed.FS
