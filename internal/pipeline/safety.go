package pipeline

import (
	"strings"

	t "fixit/internal/types"
)

// criticalKeywords force a safety-only answer regardless of what the model
// classified. The scan runs on the raw query text so a hazard is caught even
// when the model misses it.
var criticalKeywords = []string{
	"burning", "smoke", "smoking", "melting", "melted",
	"swollen battery", "swelling battery", "bulging battery",
	"electric shock", "electrocution", "exposed wire", "exposed mains",
	"sparking", "sparks", "on fire", "fire", "short circuit",
	"burning smell",
}

// warningKeywords annotate the response without changing its answer type.
var warningKeywords = []string{
	"paper jam", "jammed", "toner", "hot", "overheating",
	"moving parts", "pinch",
}

// ScanSafety merges the model's safety verdict with a deterministic keyword
// scan of the query. The stricter verdict wins: a critical keyword upgrades
// severity and sets the override even when the model reported nothing.
func ScanSafety(query string, s t.Safety) t.Safety {
	q := strings.ToLower(query)
	for _, kw := range criticalKeywords {
		if strings.Contains(q, kw) {
			s.Detected = true
			s.Severity = t.SeverityCritical
			s.Override = true
			s.KeywordsFound = appendUnique(s.KeywordsFound, kw)
			if s.Message == "" {
				s.Message = "Stop using this device immediately. Unplug it if it is safe to reach the plug, move away, and contact a qualified technician. Do not attempt repair."
			}
		}
	}
	if s.Severity == t.SeverityCritical {
		return s
	}
	for _, kw := range warningKeywords {
		if strings.Contains(q, kw) {
			s.Detected = true
			if s.Severity == "" || s.Severity == "none" {
				s.Severity = t.SeverityMedium
			}
			s.KeywordsFound = appendUnique(s.KeywordsFound, kw)
		}
	}
	return s
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
