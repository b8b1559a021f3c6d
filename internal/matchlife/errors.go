package matchlife

import (
	"fmt"
	"strings"

	"github.com/park285/rematch-discord-bot/internal/domain"
)

// Error classes. Match them with errors.Is.
var (
	ErrValidation   = errf("invalid match request")
	ErrNotFound     = errf("match channels not found")
	ErrProvisioning = errf("voice channel provisioning failed")
	ErrPersistence  = errf("match store failure")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }

// MissingMember identifies a roster entry without a Discord id.
type MissingMember struct {
	Team domain.Team
	Name string
}

// ValidationError lists every problem found in a create request.
type ValidationError struct {
	Problems []string
	Missing  []MissingMember
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 0 {
		return ErrValidation.Error()
	}
	return ErrValidation.Error() + ": " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func (e *ValidationError) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

func (e *ValidationError) empty() bool { return len(e.Problems) == 0 }

// MissingNames returns the offending member names in report order.
func (e *ValidationError) MissingNames() []string {
	out := make([]string, 0, len(e.Missing))
	for _, m := range e.Missing {
		out = append(out, m.Name)
	}
	return out
}

func validationErr(format string, args ...any) error {
	v := &ValidationError{}
	v.add(format, args...)
	return v
}
