package staticsrv

import (
	"path"
	"strings"
)

// fingerprinted assets can cache forever; everything else follows the
// html or other policy
var assetExts = map[string]bool{
	".css": true, ".js": true, ".mjs": true, ".map": true,
	".png": true, ".jpg": true, ".jpeg": true, ".webp": true, ".gif": true, ".svg": true, ".ico": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
}

// cacheControlForFile picks the Cache-Control header for a resolved file.
// Extensionless names are prerendered pages, so they follow the html
// policy rather than the catch-all.
func cacheControlForFile(name string, o *Options) string {
	ext := strings.ToLower(path.Ext(name))
	switch {
	case ext == ".html" || ext == "":
		return o.HTMLCacheControl
	case assetExts[ext]:
		return o.AssetCacheControl
	default:
		return o.OtherCacheControl
	}
}
