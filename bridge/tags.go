package bridge

import "strings"

// Ownership tags. The "=" is the separator; values may themselves contain
// "=" so parsers must split only on the first occurrence.
const (
	regIDTagName = "consular-reg-id"
	appIDTagName = "consular-app-id"
)

// regIDTag builds this bridge instance's reg-id tag. Services lacking this
// exact tag are invisible to the purge engine.
func regIDTag(registrationID string) string {
	return regIDTagName + "=" + registrationID
}

// appIDTag builds the app-id correlation tag for a registration.
func appIDTag(appID string) string {
	return appIDTagName + "=" + appID
}

// ownershipTags returns the two tags every registration written by this
// bridge must carry.
func ownershipTags(registrationID, appID string) []string {
	return []string{regIDTag(registrationID), appIDTag(appID)}
}

// hasTag reports whether tags contains an exact match for tag.
func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// extractAppID locates the single consular-app-id= tag among tags and
// returns the app-id portion. ok is false if no such tag is present. More
// than one app-id tag is an *AmbiguousOwnership error — the caller decides
// what to do with that service, but is never handed more than one
// candidate value.
func extractAppID(serviceID string, tags []string) (appID string, ok bool, err error) {
	var matches []string
	for _, t := range tags {
		name, value, found := splitFirstEquals(t)
		if found && name == appIDTagName {
			matches = append(matches, value)
		}
	}

	switch len(matches) {
	case 0:
		return "", false, nil
	case 1:
		return matches[0], true, nil
	default:
		return "", false, &AmbiguousOwnership{ServiceID: serviceID, Tags: matches}
	}
}

// splitFirstEquals splits tag on the first "=" only, so that tag values
// containing "=" are preserved intact.
func splitFirstEquals(tag string) (name, value string, ok bool) {
	idx := strings.IndexByte(tag, '=')
	if idx < 0 {
		return "", "", false
	}
	return tag[:idx], tag[idx+1:], true
}
