package domain

import "strings"

// alohaLevelKeywords maps ALOHA placemark names to LOC levels. A placemark
// matches an entry when its name contains every keyword. Entries are tried in
// order and the last match wins.
var alohaLevelKeywords = []struct {
	level    LocLevel
	keywords []string
}{
	{LevelLEL10Wind, []string{"10% LEL", "Wind Direction"}},
	{LevelLEL10, []string{"10% LEL", "Threat Zone"}},
	{LevelLEL60, []string{"60% LEL", "Threat Zone"}},
	{LevelAEGL1, []string{"AEGL-1", "Threat Zone"}},
	{LevelAEGL2, []string{"AEGL-2", "Threat Zone"}},
	{LevelAEGL3, []string{"AEGL-3", "Threat Zone"}},
	{LevelAEGL1Confidence, []string{"AEGL-1", "Confidence Lines"}},
	{LevelAEGL2Confidence, []string{"AEGL-2", "Confidence Lines"}},
	{LevelAEGL3Confidence, []string{"AEGL-3", "Confidence Lines"}},
	{LevelPAC1Wind, []string{"PAC-1", "Wind Direction"}},
	{LevelPAC1, []string{"PAC-1", "Threat Zone"}},
	{LevelPAC2, []string{"PAC-2", "Threat Zone"}},
	{LevelPAC3, []string{"PAC-3", "Threat Zone"}},
	{LevelIDLHWind, []string{"IDLH", "Wind Direction"}},
	{LevelIDLH, []string{"IDLH", "Threat Zone"}},
}

// MatchAlohaLevel resolves the LOC level of an ALOHA threat-zone placemark.
func MatchAlohaLevel(placemark string) (LocLevel, bool) {
	var (
		level LocLevel
		found bool
	)
	for _, entry := range alohaLevelKeywords {
		if containsAll(placemark, entry.keywords) {
			level, found = entry.level, true
		}
	}
	return level, found
}

// InferLocType picks the LOC type named in an ALOHA placemark. Types are
// searched in a fixed order and the first hit wins.
func InferLocType(placemark string) (LocType, bool) {
	for _, t := range []LocType{LocTypePAC, LocTypeLEL, LocTypeAEGL, LocTypeIDLH} {
		if strings.Contains(placemark, t.String()) {
			return t, true
		}
	}
	return 0, false
}

func containsAll(s string, keywords []string) bool {
	for _, k := range keywords {
		if !strings.Contains(s, k) {
			return false
		}
	}
	return true
}
