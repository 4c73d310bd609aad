package items

import (
	"go.uber.org/fx"
)

// Module provides the item store.
var Module = fx.Module("items",
	fx.Provide(NewService),
)
