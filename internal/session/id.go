// Package session generates identifiers that bind one job launch to one
// progress stream.
package session

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	prefix    = "session_"
	suffixLen = 9
)

// NewID returns a process-unique session identifier of the form
// session_<unix-millis>_<9 lowercase hex chars>.
func NewID() string {
	return NewIDAt(time.Now())
}

// NewIDAt is NewID with an explicit clock reading.
func NewIDAt(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:suffixLen]
	return prefix + strconv.FormatInt(now.UnixMilli(), 10) + "_" + suffix
}
