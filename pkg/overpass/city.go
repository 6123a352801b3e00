package overpass

import (
	"regexp"
	"strings"
)

var wordPattern = regexp.MustCompile(`\w\S*`)

// ParseCityState splits "city, st" into a title-cased city and an
// upper-cased state code.
func ParseCityState(s string) (city, state string, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return "", "", ErrInvalidCity
	}
	city = TitleCase(strings.TrimSpace(parts[0]))
	state = strings.ToUpper(strings.TrimSpace(parts[1]))
	if city == "" || state == "" {
		return "", "", ErrInvalidCity
	}
	return city, state, nil
}

// TitleCase upper-cases the first letter of each word and lower-cases the
// rest of it.
func TitleCase(s string) string {
	return wordPattern.ReplaceAllStringFunc(s, func(w string) string {
		return strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	})
}
