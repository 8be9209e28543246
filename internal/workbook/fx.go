package workbook

import "go.uber.org/fx"

var Module = fx.Module("workbook.store",
	fx.Provide(NewStore),
)
