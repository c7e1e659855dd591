package stage

import (
	"context"

	"pixguard/internal/catalog"
)

// Handler describes the contract the workflow manager needs from each stage.
type Handler interface {
	Prepare(context.Context, *catalog.Run) error
	Execute(context.Context, *catalog.Run) error
	HealthCheck(context.Context) Health
}
