package pipeline

import (
	"fmt"
	"strings"

	"github.com/AccelByte/extend-proactive-intervention/pkg/trigger"
)

// ValidateCatalog reports every catalog entry that was skipped during
// compilation. Skipped entries do not stop the cycle; the report only makes
// them visible.
//
// This catches common mistakes like:
// - Typos in condition kinds, operators or event kinds
// - Unparsable cooldown or max_delay durations
// - Duplicate trigger types
func ValidateCatalog(catalog *trigger.Catalog) error {
	if catalog == nil || len(catalog.Errors) == 0 {
		return nil
	}

	msgs := make([]string, 0, len(catalog.Errors))
	for _, err := range catalog.Errors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Errorf("trigger catalog has %d invalid entries:\n  - %s", len(msgs), strings.Join(msgs, "\n  - "))
}
