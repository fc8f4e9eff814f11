package cloud

import (
	"math"
	"strconv"
	"time"

	"github.com/sugawarayuuta/sonnet"

	"github.com/sweeney/leak-gateway/internal/logic"
)

// TimeKey is the leak_reading key holding the wall-clock time.
const TimeKey = "time"

// ReservedKey reports whether name is a leak_reading key that a peer name
// must not take.
func ReservedKey(name string) bool {
	return name == logic.LocalSource.Name || name == TimeKey
}

// Decimal2 is a float encoded as a JSON number with two decimals.
type Decimal2 float64

// MarshalJSON implements json.Marshaler.
func (d Decimal2) MarshalJSON() ([]byte, error) {
	f := float64(d)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		f = 0
	}
	return strconv.AppendFloat(nil, f, 'f', 2, 64), nil
}

// FormatReport builds the leak_reading document: local_sensor, one key per
// remote peer name and the wall-clock time.
func FormatReport(r logic.Report, wall time.Time) ([]byte, error) {
	doc := make(map[string]interface{}, len(r.Remote)+2)
	doc[logic.LocalSource.Name] = Decimal2(r.Local.Value)
	for _, rem := range r.Remote {
		doc[rem.Source.Name] = Decimal2(rem.Value)
	}
	doc[TimeKey] = wall.Format(TimeLayout)
	return sonnet.Marshal(doc)
}
