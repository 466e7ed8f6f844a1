package topic

import "strings"

type TopicMatcher struct{}

func NewTopicMatcher() *TopicMatcher {
	return &TopicMatcher{}
}

func (tm *TopicMatcher) Match(filter, topic string) bool {
	return matchTopicFilter(filter, topic)
}

func matchTopicFilter(filter, topic string) bool {
	if filter == topic {
		return true
	}

	filterLevels := splitTopicLevels(filter)
	topicLevels := splitTopicLevels(topic)

	// A wildcard occupying the first level of the filter MUST NOT match a
	// topic whose first level starts with "$" (MQTT-4.7.2-1). A wildcard
	// anywhere else in the filter is not affected: "$SYS/+/uptime" still
	// matches "$SYS/broker/uptime" normally because its first level is the
	// literal "$SYS", not a wildcard.
	if len(filterLevels) > 0 && len(topicLevels) > 0 &&
		(filterLevels[0] == "+" || filterLevels[0] == "#") &&
		strings.HasPrefix(topicLevels[0], "$") {
		return false
	}

	return matchLevels(filterLevels, topicLevels)
}

func matchLevels(filterLevels, topicLevels []string) bool {
	filterLen := len(filterLevels)
	topicLen := len(topicLevels)

	fi := 0
	ti := 0

	for fi < filterLen && ti < topicLen {
		filterLevel := filterLevels[fi]
		topicLevel := topicLevels[ti]

		if filterLevel == "#" {
			return true
		}

		if filterLevel == "+" {
			fi++
			ti++
			continue
		}

		if filterLevel != topicLevel {
			return false
		}

		fi++
		ti++
	}

	if fi < filterLen {
		return filterLen-fi == 1 && filterLevels[fi] == "#"
	}

	return ti == topicLen
}
