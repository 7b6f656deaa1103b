package classify

import (
	"time"

	"github.com/valyala/fastjson"
)

// Sample is one raw fallback record. Ago positions it relative to the time
// the fallback is rendered, so samples stay inside the recent time windows.
type Sample struct {
	Ago time.Duration `toml:"ago" yaml:"ago"`
	Raw string        `toml:"raw" yaml:"raw"`
}

// SamplePayload renders the samples as a JSON array. Records without their
// own timestamp are stamped with now minus Ago. Samples that are not JSON
// objects are skipped.
func (t Taxonomy) SamplePayload(now time.Time) []byte {
	var a fastjson.Arena
	arr := a.NewArray()

	i := 0
	for _, s := range t.Samples {
		v, err := fastjson.Parse(s.Raw)
		if err != nil || v.Type() != fastjson.TypeObject {
			continue
		}
		if v.Get("timestamp") == nil {
			v.Set("timestamp", a.NewString(now.Add(-s.Ago).UTC().Format(time.RFC3339Nano)))
		}
		arr.SetArrayItem(i, v)
		i++
	}

	return arr.MarshalTo(nil)
}
