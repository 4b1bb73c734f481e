package text

import (
	"regexp"
	"strconv"
)

var experiencePattern = regexp.MustCompile(`(?i)(\d+)\s+(?:years?|yrs?)\s+of\s+experience`)

// EstimateExperienceYears returns the largest "N years of experience" figure
// mentioned in s, or 0 when there is none.
func EstimateExperienceYears(s string) int {
	best := 0
	for _, m := range experiencePattern.FindAllStringSubmatch(s, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n > best {
			best = n
		}
	}
	return best
}
