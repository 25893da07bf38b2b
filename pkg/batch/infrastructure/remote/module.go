package remote

import (
	"go.uber.org/fx"
)

// Module provides HTTPLauncher as a port.Launcher.
var Module = fx.Options(
	fx.Provide(NewHTTPLauncher),
)
