// Package appfs embeds the SQL migrations and the static assets shipped with the binaries.
package appfs

import "embed"

//go:embed migrations assets assets/templates/email/_*
var FS embed.FS
