package linktypes

import (
	"go.uber.org/fx"
)

// Module provides the link type registry.
var Module = fx.Module("linktypes",
	fx.Provide(NewService),
)
