package app

import (
	"sync"

	"github.com/kelseyhightower/envconfig"
)

// runtimeFlags are read before the full Config so binaries can bail out
// without any secrets present.
type runtimeFlags struct {
	TestMode bool `envconfig:"SAMUDRA_TEST_MODE"`
}

var loadRuntimeFlags = sync.OnceValue(func() runtimeFlags {
	var flags runtimeFlags
	if err := envconfig.Process("", &flags); err != nil {
		return runtimeFlags{}
	}
	return flags
})

// InTestMode reports whether the binaries should skip runtime side effects.
func InTestMode() bool {
	return loadRuntimeFlags().TestMode
}
