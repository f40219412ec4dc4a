package runtime

import (
	"github.com/filecoin-project/go-state-types/rt"
)

// Concrete types associated with the runtime interface.

type VMActor = rt.VMActor

// Log levels accepted by Runtime.Log.
const (
	DEBUG = rt.DEBUG
	INFO  = rt.INFO
	WARN  = rt.WARN
	ERROR = rt.ERROR
)
