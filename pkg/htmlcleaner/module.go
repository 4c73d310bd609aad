package htmlcleaner

import (
	"go.uber.org/fx"

	"github.com/happy-geeks/geeks-core-library-sub000/internal/config"
)

// Module provides the HTML cleaner configured with the site's main domain.
var Module = fx.Module("htmlcleaner",
	fx.Provide(func(cfg *config.Config) *Cleaner {
		return New(cfg.MainDomain)
	}),
)
