package staticsrv

import (
	"io/fs"
	"path"
	"strings"
)

// resolvePath maps a storefront URL path onto the asset tree. It returns
// the fs-relative file to serve, or a canonical path to redirect to, or
// neither when the path is unsafe or absent.
func resolvePath(urlPath string, fsys fs.FS) (file string, redirectTo string, ok bool) {
	p := urlPath
	if p == "" {
		p = "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}

	// reject before cleaning: null bytes, backslashes, and dot segments
	// never appear in legitimate storefront URLs
	if strings.Contains(p, "\x00") || strings.Contains(p, "\\") {
		return "", "", false
	}
	if hasDotSegments(p) {
		return "", "", false
	}

	hadSlash := strings.HasSuffix(p, "/")
	clean := path.Clean(p)
	if hadSlash && clean != "/" {
		clean += "/"
	}

	switch {
	case clean == "/":
		return serveIfPresent(fsys, "index.html")

	case strings.HasSuffix(clean, "/"):
		// "/cart/" serves cart/index.html
		return serveIfPresent(fsys, strings.TrimPrefix(clean, "/")+"index.html")

	case path.Ext(clean) != "":
		return serveIfPresent(fsys, strings.TrimPrefix(clean, "/"))
	}

	// extensionless page URL like "/checkout": when checkout/index.html
	// exists, redirect to the canonical slash form so relative links hold
	if existsFile(fsys, strings.TrimPrefix(clean, "/")+"/index.html") {
		return "", clean + "/", true
	}
	return "", "", false
}

func serveIfPresent(fsys fs.FS, name string) (string, string, bool) {
	if existsFile(fsys, name) {
		return name, "", true
	}
	return "", "", false
}

// hasDotSegments reports whether any slash-delimited segment is "." or
// "..". Dotfiles like "/.well-known" pass.
func hasDotSegments(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

func existsFile(fsys fs.FS, name string) bool {
	if name == "" || !fs.ValidPath(name) {
		return false
	}
	info, err := fs.Stat(fsys, name)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
