package aggregation

import (
	"go.uber.org/fx"
)

// Module provides the aggregation engine.
var Module = fx.Module("aggregation",
	fx.Provide(NewEngine),
)
