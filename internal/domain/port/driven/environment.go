package driven

import "github.com/ericfisherdev/keyquota/internal/domain/model"

// EnvironmentProbe reports the client environment used to derive the storage
// passphrase. Unavailable attributes are returned empty.
type EnvironmentProbe interface {
	Environment() model.Environment
}
