package logger

import (
	"go.uber.org/fx"
)

// Module provides the root logger.
var Module = fx.Module("logger",
	fx.Provide(NewLogger),
)
