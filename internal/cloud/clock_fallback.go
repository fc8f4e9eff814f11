package cloud

import "time"

// minSyncedYear rejects the epoch-based time an unsynchronized RTC-less
// board boots with.
const minSyncedYear = 2024

func fallbackSynced() bool {
	return time.Now().Year() >= minSyncedYear
}
