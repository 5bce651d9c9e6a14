package scheduler

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// generateSchedulerName builds a scheduler name from the local hostname and
// a short random suffix, used as the default PickedBy value when Config
// does not set SchedulerName explicitly.
func generateSchedulerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown-host"
	}
	return fmt.Sprintf("%s-%s", host, uuid.New().String()[:8])
}
