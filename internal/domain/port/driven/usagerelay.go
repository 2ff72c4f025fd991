package driven

import (
	"context"

	"github.com/ericfisherdev/keyquota/internal/domain/model"
)

// UsageRelay defines the driven port for querying a key's quota through the
// relay service. Implementations hold the relay session token in memory.
type UsageRelay interface {
	// Init establishes a relay session. It must succeed before FetchUsage
	// requests carry a valid session token.
	Init(ctx context.Context) error

	// FetchUsage returns the usage reported for secret. Failures carry a
	// user-presentable message.
	FetchUsage(ctx context.Context, secret string) (model.Usage, error)
}

// UsageUpstream defines the driven port the relay uses to reach the real
// usage endpoint. The status code and raw body are returned unmodified so the
// relay can forward them.
type UsageUpstream interface {
	Usage(ctx context.Context, secret string) (status int, body []byte, err error)
}
