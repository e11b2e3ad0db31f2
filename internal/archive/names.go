package archive

import (
	"regexp"
	"strconv"
	"strings"
)

// SamplePrefix is the directory inside an eval archive that holds one JSON
// document per sample and epoch.
const SamplePrefix = "samples/"

// sampleEntryPattern is the naming convention fixed by the eval log writer:
// samples/<sample_id>_epoch_<n>.json, where the epoch suffix may be absent.
var sampleEntryPattern = regexp.MustCompile(`^` + regexp.QuoteMeta(SamplePrefix) + `(.+?)(?:_epoch_(\d+))?\.json$`)

// ParseEntryName derives the sample id and epoch hint from an entry name
// without touching the entry body. epoch is 0 when the name carries no usable
// epoch. ok is false for entries that are not sample transcripts.
func ParseEntryName(name string) (id string, epoch int, ok bool) {
	if !strings.HasPrefix(name, SamplePrefix) {
		return "", 0, false
	}
	m := sampleEntryPattern.FindStringSubmatch(name)
	if m == nil {
		return "", 0, false
	}
	id = m[1]
	if m[2] != "" {
		if n, err := strconv.Atoi(m[2]); err == nil && n > 0 {
			epoch = n
		}
	}
	return id, epoch, true
}
