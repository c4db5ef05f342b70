package taskgraph

import (
	"context"
	"fmt"

	"github.com/viant/taskgraph/service/dao"
	"github.com/viant/taskgraph/service/dao/task/fs"
	"github.com/viant/taskgraph/service/dao/task/memory"
	"github.com/viant/taskgraph/service/dao/task/postgres"
	"github.com/viant/taskgraph/service/dao/task/sqlite"
)

// OpenStore opens the task store selected by cfg.Kind. SQL stores verify
// connectivity and apply their schema before returning.
func OpenStore(ctx context.Context, cfg StoreConfig) (dao.TaskService, error) {
	switch cfg.Kind {
	case StoreMemory, "":
		return memory.New(), nil
	case StoreFS:
		return fs.New(cfg.Path)
	case StoreSQLite:
		return sqlite.New(ctx, cfg.Path)
	case StorePostgres:
		return postgres.New(ctx, cfg.DSN)
	}
	return nil, fmt.Errorf("unsupported store kind: %q", cfg.Kind)
}
