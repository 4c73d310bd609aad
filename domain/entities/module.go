package entities

import (
	"go.uber.org/fx"
)

// Module provides the entity type registry.
var Module = fx.Module("entities",
	fx.Provide(NewService),
)
