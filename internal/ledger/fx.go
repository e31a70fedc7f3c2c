package ledger

import (
	ledgerdomain "github.com/smallbiznis/billbook/internal/ledger/domain"
	"github.com/smallbiznis/billbook/internal/ledger/repository"
	"github.com/smallbiznis/billbook/internal/ledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(func(s ledgerdomain.Service) ledgerdomain.Poster { return s }),
)
