package encryption

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/happy-geeks/geeks-core-library-sub000/internal/config"
)

// Module provides the encryption service with the configured default key.
var Module = fx.Module("encryption",
	fx.Provide(func(log *slog.Logger, cfg *config.Config) *Service {
		return NewService(log, cfg.Security.EncryptionKey)
	}),
)
