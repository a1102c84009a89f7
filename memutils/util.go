package memutils

import (
	"encoding/json"
	"strconv"

	cerrors "github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// FormatAddress renders a simulated byte address the way segment tables are printed: lower-case
// hex with a 0x prefix
func FormatAddress(address uint64) string {
	return "0x" + strconv.FormatUint(address, 16)
}

// WriteUint writes value as an unsigned JSON number. jwriter only offers int and float64, and
// neither holds every uint64 exactly.
func WriteUint(writer *jwriter.Writer, value uint64) {
	writer.Raw(json.RawMessage(strconv.FormatUint(value, 10)))
}

// CheckPositive returns ErrInvalidConfiguration, annotated with the field name, if value is zero
func CheckPositive(value uint64, name string) error {
	if value == 0 {
		return cerrors.Wrapf(ErrInvalidConfiguration, "%s must be greater than zero", name)
	}
	return nil
}
