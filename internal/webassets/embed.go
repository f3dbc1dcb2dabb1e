package webassets

import (
	"embed"
	"fmt"
	"io/fs"
)

// site/ must exist and have at least one file to satisfy go:embed
//
//go:embed site
var embedded embed.FS

// SiteFS returns the built-in page documents. They back the page routes
// when the on-disk static directory does not provide its own copy, so a
// fresh checkout serves a working storefront without any extra files.
func SiteFS() fs.FS {
	sub, err := fs.Sub(embedded, "site")
	if err != nil {
		panic(fmt.Errorf("webassets: site subfs: %w", err))
	}
	return sub
}
