package workflows

import (
	"go.uber.org/fx"
)

// Module provides the workflow executor.
var Module = fx.Module("workflows",
	fx.Provide(NewService),
)
