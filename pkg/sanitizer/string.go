package sanitizer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

var (
	rePlateSeparators = regexp.MustCompile(`[\s.\-_/]+`)
	reSlotID          = regexp.MustCompile(`^([A-Za-z])[\s\-_]*0*(\d{1,2})$`)
)

func TrimAndNormalize(s string) string {
	s = strings.TrimSpace(s)

	if s == "" {
		return ""
	}

	var result strings.Builder
	var lastWasSpace bool

	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				result.WriteRune(' ')
				lastWasSpace = true
			}
		} else {
			result.WriteRune(r)
			lastWasSpace = false
		}
	}

	return result.String()
}

func NormalizeName(name string) string {
	return TrimAndNormalize(name)
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func NormalizeVehicleNumber(plate string) string {
	p := Pipeline{
		strings.TrimSpace,
		func(s string) string { return rePlateSeparators.ReplaceAllString(s, "") },
		strings.ToUpper,
	}
	return p.Apply(plate)
}

// NormalizeSlotID rewrites loose slot references to the canonical "A-01"
// form. Input that does not look like a slot id is only trimmed and
// upper-cased.
func NormalizeSlotID(id string) string {
	id = strings.TrimSpace(id)
	m := reSlotID.FindStringSubmatch(id)
	if m == nil {
		return strings.ToUpper(id)
	}
	n, err := strconv.Atoi(m[2])
	if err != nil || n == 0 {
		return strings.ToUpper(id)
	}
	return FormatSlotID(strings.ToUpper(m[1]), n)
}

func FormatSlotID(section string, number int) string {
	return fmt.Sprintf("%s-%02d", section, number)
}
