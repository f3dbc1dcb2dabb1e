package staticsrv

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/halvard-dev/storefront/internal/log"
)

var ErrInvalidOptions = errors.New("staticsrv: invalid options")

type Options struct {
	Logger log.Logger

	// FS is the root of the static document tree (usually os.DirFS of
	// the configured static directory).
	FS fs.FS

	// Cache policies applied by file extension.
	HTMLCacheControl  string // default: "no-cache"
	AssetCacheControl string // default: "public, max-age=31536000, immutable"
	OtherCacheControl string // default: "public, max-age=3600"
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.HTMLCacheControl == "" {
		o.HTMLCacheControl = "no-cache"
	}
	if o.AssetCacheControl == "" {
		o.AssetCacheControl = "public, max-age=31536000, immutable"
	}
	if o.OtherCacheControl == "" {
		o.OtherCacheControl = "public, max-age=3600"
	}
}

func (o *Options) validate() error {
	if o.FS == nil {
		return fmt.Errorf("%w: FS is nil", ErrInvalidOptions)
	}
	return nil
}
