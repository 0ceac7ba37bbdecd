package usage

// Filter returns a copy of durations without the excluded and reserved keys.
func Filter(durations AppDurations, excluded, reserved ExclusionSet) AppDurations {
	kept := make(AppDurations, len(durations))
	for appKey, ms := range durations {
		if excluded.Contains(appKey) || reserved.Contains(appKey) {
			continue
		}
		kept[appKey] = ms
	}
	return kept
}

// ReservedKeys builds the set of keys that never count towards totals: the
// tracker itself, the home launcher and the system shell, plus any extras.
func ReservedKeys(self, launcher, shell string, extra ...string) ExclusionSet {
	keys := append([]string{self, launcher, shell}, extra...)
	return NewExclusionSet(keys...)
}

// removed returns the entries of durations that Filter dropped.
func removed(durations, kept AppDurations) AppDurations {
	out := make(AppDurations)
	for appKey, ms := range durations {
		if _, ok := kept[appKey]; !ok {
			out[appKey] = ms
		}
	}
	return out
}
