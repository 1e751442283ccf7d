package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var isoLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// dateParser accepts ISO timestamps and natural phrases such as
// "tomorrow 3pm" or "next monday".
type dateParser struct {
	w *when.Parser
}

func newDateParser() *dateParser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &dateParser{w: w}
}

// parse reads s in loc. Relative phrases are resolved against base.
func (p *dateParser) parse(s string, base time.Time, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}

	res, err := p.w.Parse(s, base.In(loc))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %q: %w", s, err)
	}
	if res == nil {
		return time.Time{}, fmt.Errorf("unrecognized date %q", s)
	}
	return res.Time.In(loc), nil
}
