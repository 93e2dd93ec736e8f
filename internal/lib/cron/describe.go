package cron

import (
	"fmt"
	"strconv"
	"strings"
)

var weekdays = map[string]string{
	"0": "Sunday", "1": "Monday", "2": "Tuesday", "3": "Wednesday",
	"4": "Thursday", "5": "Friday", "6": "Saturday", "7": "Sunday",
	"SUN": "Sunday", "MON": "Monday", "TUE": "Tuesday", "WED": "Wednesday",
	"THU": "Thursday", "FRI": "Friday", "SAT": "Saturday",
}

var months = map[string]string{
	"1": "January", "2": "February", "3": "March", "4": "April",
	"5": "May", "6": "June", "7": "July", "8": "August",
	"9": "September", "10": "October", "11": "November", "12": "December",
}

// SplitTimezone splits a Vertex-style schedule expression of the form
// "TZ=Area/City * * * * *" into its zone and cron parts. Expressions
// without a TZ prefix return an empty zone.
func SplitTimezone(expr string) (zone, cronExpr string) {
	trimmed := strings.TrimSpace(expr)
	if !strings.HasPrefix(trimmed, "TZ=") {
		return "", trimmed
	}
	parts := strings.SplitN(trimmed, " ", 2)
	zone = strings.TrimPrefix(parts[0], "TZ=")
	if len(parts) == 2 {
		cronExpr = strings.TrimSpace(parts[1])
	}
	return zone, cronExpr
}

// Describe renders a five-field cron expression as plain language for
// display in schedule listings. Expressions it cannot classify are
// returned unchanged.
func Describe(expr string) string {
	zone, cronExpr := SplitTimezone(expr)
	if _, err := ParseCronSchedule(cronExpr); err != nil {
		return expr
	}

	fields := strings.Fields(cronExpr)
	if len(fields) != 5 {
		return expr
	}
	minute, hour, dom, month, dow := fields[0], fields[1], fields[2], fields[3], fields[4]

	desc := describeFields(minute, hour, dom, month, dow)
	if desc == "" {
		return expr
	}
	if zone != "" {
		desc = desc + " (" + zone + ")"
	}
	return desc
}

func describeFields(minute, hour, dom, month, dow string) string {
	switch {
	case minute == "*" && hour == "*" && dom == "*" && month == "*" && dow == "*":
		return "every minute"
	case strings.HasPrefix(minute, "*/") && hour == "*" && dom == "*" && month == "*" && dow == "*":
		return fmt.Sprintf("every %s minutes", strings.TrimPrefix(minute, "*/"))
	case isNumeric(minute) && strings.HasPrefix(hour, "*/") && dom == "*" && month == "*" && dow == "*":
		return fmt.Sprintf("at minute %s past every %s hours", minute, strings.TrimPrefix(hour, "*/"))
	case isNumeric(minute) && hour == "*" && dom == "*" && month == "*" && dow == "*":
		return fmt.Sprintf("at minute %s of every hour", minute)
	case isNumeric(minute) && isNumeric(hour):
		at := fmt.Sprintf("at %s", clockTime(hour, minute))
		switch {
		case dom == "*" && month == "*" && dow == "*":
			return at + " every day"
		case dom == "*" && month == "*":
			return at + " on " + dayNames(dow)
		case month == "*" && dow == "*":
			return fmt.Sprintf("%s on day %s of the month", at, dom)
		case dow == "*" && isNumeric(dom):
			if m, ok := months[month]; ok {
				return fmt.Sprintf("%s on %s %s", at, m, dom)
			}
		}
	}
	return ""
}

func clockTime(hour, minute string) string {
	h, _ := strconv.Atoi(hour)
	m, _ := strconv.Atoi(minute)
	return fmt.Sprintf("%02d:%02d", h, m)
}

func dayNames(dow string) string {
	var names []string
	for _, d := range strings.Split(dow, ",") {
		if name, ok := weekdays[strings.ToUpper(d)]; ok {
			names = append(names, name)
		} else {
			return dow
		}
	}
	return strings.Join(names, ", ")
}

func isNumeric(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}
