package graph

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Accessor executes a query against a data source. Implementations report
// every problem through the returned QueryResult.
type Accessor interface {
	Execute(ctx context.Context, query string, target Target) QueryResult
}

// Executor routes a query to the remote client or the local loader by target
// kind.
type Executor struct {
	Remote *RemoteClient
	Local  *LocalLoader
}

func NewExecutor(remoteTimeout time.Duration, graphCacheSize int, log *zap.Logger) (*Executor, error) {
	local, err := NewLocalLoader(graphCacheSize, log)
	if err != nil {
		return nil, err
	}
	return &Executor{Remote: NewRemoteClient(remoteTimeout), Local: local}, nil
}

func (e *Executor) Execute(ctx context.Context, query string, target Target) QueryResult {
	switch target.Kind {
	case KindRemote:
		return e.Remote.Execute(ctx, query, target.Endpoint)
	case KindLocal:
		return e.Local.Execute(ctx, query, target.Dir)
	default:
		return Failure(fmt.Sprintf("unknown data source kind %q", target.Kind))
	}
}
