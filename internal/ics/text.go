package ics

import "strings"

// unfoldLines joins continuation lines onto their predecessor and strips a
// trailing CR from every physical line.
func unfoldLines(physical []string) []string {
	out := make([]string, 0, len(physical))
	for _, l := range physical {
		l = strings.TrimSuffix(l, "\r")
		if (strings.HasPrefix(l, " ") || strings.HasPrefix(l, "\t")) && len(out) > 0 {
			out[len(out)-1] += l[1:]
			continue
		}
		out = append(out, l)
	}
	return out
}

// property is one parsed content line: NAME;PARAM=V:VALUE.
type property struct {
	Name   string
	Params map[string]string
	Value  string
}

// parseProperty splits a content line at the first colon outside quotes.
func parseProperty(line string) (property, bool) {
	inQuote := false
	colon := -1
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '"':
			inQuote = !inQuote
		case ':':
			if !inQuote {
				colon = i
			}
		}
		if colon >= 0 {
			break
		}
	}
	if colon <= 0 {
		return property{}, false
	}

	head, value := line[:colon], line[colon+1:]
	parts := strings.Split(head, ";")
	p := property{
		Name:  strings.ToUpper(strings.TrimSpace(parts[0])),
		Value: value,
	}
	for _, raw := range parts[1:] {
		k, v, ok := strings.Cut(raw, "=")
		if !ok {
			continue
		}
		if p.Params == nil {
			p.Params = make(map[string]string)
		}
		p.Params[strings.ToUpper(strings.TrimSpace(k))] = strings.Trim(v, `"`)
	}
	return p, p.Name != ""
}
