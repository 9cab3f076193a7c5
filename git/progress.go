package git

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/grovetools/rulesync/pkg/models"
)

// Progress is what one line of `git --progress` output reports.
type Progress struct {
	Phase            models.Phase
	Percent          *int
	Current          *int
	Total            *int
	BytesTransferred *int64
	TransferSpeed    string
}

var phasePrefixes = []struct {
	prefix string
	phase  models.Phase
}{
	{"Enumerating objects", models.PhaseCounting},
	{"Counting objects", models.PhaseCounting},
	{"Compressing objects", models.PhaseCompressing},
	{"Writing objects", models.PhaseWriting},
	{"Receiving objects", models.PhaseReceiving},
	{"Resolving deltas", models.PhaseResolving},
	{"Unpacking objects", models.PhaseUnpacking},
}

var (
	percentRe = regexp.MustCompile(`(\d+)%\s*\((\d+)/(\d+)\)`)
	countRe   = regexp.MustCompile(`:\s*(\d+)(?:,|$)`)
	bytesRe   = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(bytes|B|KiB|MiB|GiB)(?:\s*\|\s*(\d+(?:\.\d+)?\s*(?:bytes|B|KiB|MiB|GiB)/s))?`)
)

var units = map[string]float64{
	"bytes": 1,
	"B":     1,
	"KiB":   1 << 10,
	"MiB":   1 << 20,
	"GiB":   1 << 30,
}

// ParseProgress interprets a progress line. ok is false for lines that do
// not belong to a known phase.
func ParseProgress(line string) (p Progress, ok bool) {
	line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "remote:"))

	for _, pp := range phasePrefixes {
		if strings.HasPrefix(line, pp.prefix) {
			p.Phase = pp.phase
			ok = true
			break
		}
	}
	if !ok {
		return p, false
	}

	if m := percentRe.FindStringSubmatch(line); m != nil {
		pct, _ := strconv.Atoi(m[1])
		cur, _ := strconv.Atoi(m[2])
		total, _ := strconv.Atoi(m[3])
		p.Percent, p.Current, p.Total = &pct, &cur, &total
	} else if m := countRe.FindStringSubmatch(line); m != nil {
		cur, _ := strconv.Atoi(m[1])
		p.Current = &cur
	}

	// Byte counts follow the object counter: "..., 1.20 MiB | 512.00 KiB/s"
	if i := strings.Index(line, "),"); i >= 0 {
		if m := bytesRe.FindStringSubmatch(line[i:]); m != nil {
			val, _ := strconv.ParseFloat(m[1], 64)
			n := int64(val * units[m[2]])
			p.BytesTransferred = &n
			if m[3] != "" {
				p.TransferSpeed = spaceUnit(m[3])
			}
		}
	}
	return p, true
}

// spaceUnit normalizes "512.00KiB/s" and "512.00 KiB/s" to the latter.
func spaceUnit(s string) string {
	s = strings.ReplaceAll(s, " ", "")
	for _, u := range []string{"GiB", "MiB", "KiB", "bytes", "B"} {
		if i := strings.Index(s, u+"/s"); i > 0 {
			return s[:i] + " " + s[i:]
		}
	}
	return s
}

// Event builds a progress event for operation id from p.
func (p Progress) Event(id string, opType models.OperationType) models.OperationProgressEvent {
	return models.OperationProgressEvent{
		OperationID:      id,
		OperationType:    opType,
		Phase:            p.Phase,
		Progress:         p.Percent,
		Current:          p.Current,
		Total:            p.Total,
		BytesTransferred: p.BytesTransferred,
		TransferSpeed:    p.TransferSpeed,
	}
}
