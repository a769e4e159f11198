// Package ui embeds the built page served at the site root.
package ui

import "embed"

// DistFS holds the contents of dist/.
//
//go:embed dist
var DistFS embed.FS
