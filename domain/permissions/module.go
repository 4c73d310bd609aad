package permissions

import (
	"go.uber.org/fx"
)

// Module provides the permission evaluator.
var Module = fx.Module("permissions",
	fx.Provide(NewService),
)
