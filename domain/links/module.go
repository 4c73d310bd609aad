package links

import (
	"go.uber.org/fx"
)

// Module provides the link manager.
var Module = fx.Module("links",
	fx.Provide(NewService),
)
