package period

import (
	"github.com/smallbiznis/meterbill/internal/period/service"
	"go.uber.org/fx"
)

var Module = fx.Module("period.service",
	fx.Provide(service.New),
)
