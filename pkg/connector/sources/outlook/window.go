package outlook

import (
	"time"

	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
)

// DateLayout is the layout accepted for window bounds.
const DateLayout = "2006-01-02"

// Window is the open interval of received times kept by an extraction.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow parses start and end as YYYY-MM-DD dates in UTC. When either is
// empty the window spans the calendar day before now.
func NewWindow(start, end string, now time.Time) (Window, error) {
	if start != "" && end != "" {
		s, err := time.ParseInLocation(DateLayout, start, time.UTC)
		if err != nil {
			return Window{}, errors.Wrapf(err, errors.ErrorTypeValidation, "invalid start date %q", start)
		}
		e, err := time.ParseInLocation(DateLayout, end, time.UTC)
		if err != nil {
			return Window{}, errors.Wrapf(err, errors.ErrorTypeValidation, "invalid end date %q", end)
		}
		return Window{Start: s, End: e}, nil
	}

	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return Window{Start: today.AddDate(0, 0, -1), End: today}, nil
}

// Contains reports whether t lies strictly between Start and End.
func (w Window) Contains(t time.Time) bool {
	t = t.UTC()
	return t.After(w.Start) && t.Before(w.End)
}

func (w Window) String() string {
	const layout = "2006-01-02 15:04:05"
	return w.Start.Format(layout) + " to " + w.End.Format(layout)
}
