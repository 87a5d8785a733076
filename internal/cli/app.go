package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/meterbill/internal/billing/domain"
	"github.com/smallbiznis/meterbill/internal/clock"
	"github.com/smallbiznis/meterbill/internal/config"
	customerdomain "github.com/smallbiznis/meterbill/internal/customer/domain"
	"github.com/smallbiznis/meterbill/internal/migration"
	"github.com/smallbiznis/meterbill/internal/observability"
	obscontext "github.com/smallbiznis/meterbill/internal/observability/context"
	"github.com/smallbiznis/meterbill/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/meterbill/internal/payment/domain"
	perioddomain "github.com/smallbiznis/meterbill/internal/period/domain"
	"github.com/smallbiznis/meterbill/internal/seed"
	"github.com/smallbiznis/meterbill/internal/server"
	"github.com/smallbiznis/meterbill/internal/store"
	"github.com/smallbiznis/meterbill/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NewSnowflakeNode builds the id generator for this process.
func NewSnowflakeNode(cfg config.Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", cfg.NodeID, err)
	}
	return node, nil
}

// Core is everything a process needs to run billing operations, without the
// HTTP server.
var Core = fx.Options(
	config.Module,
	observability.Module,
	fx.Provide(NewSnowflakeNode),
	clock.Module,
	db.Module,
	migration.Module,
	store.Module,
	server.Services,
	seed.Module,
	fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
		return &fxevent.ZapLogger{Logger: log.Named("fx")}
	}),
)

type deps struct {
	fx.In

	Log       *zap.Logger
	DB        *gorm.DB `optional:"true"`
	Customers customerdomain.Service
	Periods   perioddomain.Service
	Billing   billingdomain.Service
	Payments  paymentdomain.Service
	Seeder    *seed.Seeder
}

const startTimeout = 30 * time.Second

// withApp starts the core graph, runs fn and stops the graph again. Logs go to
// stderr so command output on stdout stays machine readable.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, d deps) error) error {
	var d deps
	app := fx.New(
		Core,
		fx.Decorate(func(c logger.Config) logger.Config {
			c.Output = "stderr"
			return c
		}),
		fx.Populate(&d),
	)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(cmd.Context(), startTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), startTimeout)
		defer cancel()
		_ = app.Stop(stopCtx)
	}()

	ctx := obscontext.WithOperator(cmd.Context(), operatorFrom(cmd))
	return fn(ctx, d)
}
