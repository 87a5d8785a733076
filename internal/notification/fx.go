package notification

import (
	"github.com/smallbiznis/meterbill/internal/notification/publisher"
	"github.com/smallbiznis/meterbill/internal/notification/service"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.service",
	fx.Provide(publisher.Provide),
	fx.Provide(service.NewService),
	fx.Provide(service.NewEmitter),
)
