// Package sdg holds static reference data for the 17 Sustainable Development Goals.
package sdg

import (
	"fmt"
	"strconv"
	"strings"
)

// Labels lists the official goal titles, index 0 = SDG 1.
var Labels = [17]string{
	"No Poverty",
	"Zero Hunger",
	"Good Health and Well-being",
	"Quality Education",
	"Gender Equality",
	"Clean Water and Sanitation",
	"Affordable and Clean Energy",
	"Decent Work and Economic Growth",
	"Industry, Innovation and Infrastructure",
	"Reduced Inequality",
	"Sustainable Cities and Communities",
	"Responsible Consumption and Production",
	"Climate Action",
	"Life Below Water",
	"Life on Land",
	"Peace, Justice and Strong Institutions",
	"Partnerships for the Goals",
}

// Info is display reference data for one goal.
type Info struct {
	Title string `json:"title"`
	Color string `json:"color"`
}

// colors follow the official UN SDG palette.
var colors = [17]string{
	"#E5243B", "#DDA63A", "#4C9F38", "#C5192D", "#FF3A21",
	"#26BDE2", "#FCC30B", "#A21942", "#FD6925", "#DD1367",
	"#FD9D24", "#BF8B2E", "#3F7E44", "#0A97D9", "#56C02B",
	"#00689D", "#19486A",
}

// Lookup returns display info for goal n (1-17). ok is false outside that range.
func Lookup(n int) (Info, bool) {
	if n < 1 || n > 17 {
		return Info{}, false
	}
	return Info{Title: Labels[n-1], Color: colors[n-1]}, true
}

// FormatLabel renders the canonical display form, e.g. "SDG 6: Clean Water and Sanitation".
// Unknown numbers are rendered without a title.
func FormatLabel(n int) string {
	if info, ok := Lookup(n); ok {
		return fmt.Sprintf("SDG %d: %s", n, info.Title)
	}
	return fmt.Sprintf("SDG %d", n)
}

// ParseLabel extracts the goal number from a display label such as
// "SDG 6: Clean Water and Sanitation". Returns 0 when the label does not
// start with the "SDG N" form.
func ParseLabel(label string) int {
	s := strings.TrimSpace(label)
	if !strings.HasPrefix(s, "SDG ") {
		return 0
	}
	s = s[len("SDG "):]
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 || n > 17 {
		return 0
	}
	return n
}

// DisplayMap returns the "SDG 1" -> title map used by the system info payload.
func DisplayMap() map[string]string {
	m := make(map[string]string, len(Labels))
	for i, label := range Labels {
		m[fmt.Sprintf("SDG %d", i+1)] = label
	}
	return m
}
