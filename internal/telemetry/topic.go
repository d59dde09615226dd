package telemetry

import (
	"errors"
	"strings"
)

// MatchTopic reports whether topic is matched by the subscription filter,
// honouring the single-level (+) and multi-level (#) wildcards.
func MatchTopic(filter, topic string) bool {
	// Wildcards at the first level never match topics starting with '$'.
	if strings.HasPrefix(topic, "$") && (strings.HasPrefix(filter, "+") || strings.HasPrefix(filter, "#")) {
		return false
	}

	fLevels := strings.Split(filter, "/")
	tLevels := strings.Split(topic, "/")

	for i, f := range fLevels {
		if f == "#" {
			return true
		}
		if i >= len(tLevels) {
			return false
		}
		if f != "+" && f != tLevels[i] {
			return false
		}
	}
	return len(fLevels) == len(tLevels)
}

func validateFilter(filter string) error {
	if filter == "" {
		return errors.New("topic cannot be empty")
	}
	levels := strings.Split(filter, "/")
	for i, l := range levels {
		switch {
		case l == "#" && i != len(levels)-1:
			return errors.New("'#' must be the last level")
		case l != "#" && l != "+" && strings.ContainsAny(l, "+#"):
			return errors.New("wildcards must occupy a whole level")
		}
	}
	return nil
}
