package reading

import (
	"github.com/smallbiznis/meterbill/internal/reading/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reading.service",
	fx.Provide(service.New),
)
