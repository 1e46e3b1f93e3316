// Package assets: статика веб-роли, вшитая в бинарник.
package assets

import "embed"

//go:embed static
var FS embed.FS
