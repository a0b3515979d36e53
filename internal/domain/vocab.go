package domain

import "strings"

// Category is the hazard family a LOC type belongs to.
type Category int

const (
	CategoryToxic Category = iota + 1
	CategoryFlammable
	CategoryEcotoxic
)

// Categories lists every hazard category in seeding order.
func Categories() []Category {
	return []Category{CategoryToxic, CategoryFlammable, CategoryEcotoxic}
}

func (c Category) String() string {
	switch c {
	case CategoryToxic:
		return "TOXIC"
	case CategoryFlammable:
		return "FLAMMABLE"
	case CategoryEcotoxic:
		return "ECOTOXIC"
	default:
		return "UNKNOWN"
	}
}

// LocType is a level-of-concern threshold family.
type LocType int

const (
	LocTypePAC LocType = iota + 1
	LocTypeAEGL
	LocTypeLEL
	LocTypeIDLH
	LocTypeLC50
)

var locTypeNames = map[LocType]string{
	LocTypePAC:  "PAC",
	LocTypeAEGL: "AEGL",
	LocTypeLEL:  "LEL",
	LocTypeIDLH: "IDLH",
	LocTypeLC50: "LC50",
}

// LocTypes lists every LOC type in seeding order.
func LocTypes() []LocType {
	return []LocType{LocTypePAC, LocTypeAEGL, LocTypeLEL, LocTypeIDLH, LocTypeLC50}
}

func (t LocType) String() string {
	if name, ok := locTypeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseLocType resolves a LOC type name. Matching is exact apart from
// surrounding whitespace.
func ParseLocType(s string) (LocType, error) {
	name := strings.TrimSpace(s)
	for _, t := range LocTypes() {
		if locTypeNames[t] == name {
			return t, nil
		}
	}
	return 0, &UnknownVocabularyError{Kind: "loc_type", Name: s}
}

// Category maps the LOC type to its hazard category.
func (t LocType) Category() Category {
	switch t {
	case LocTypePAC, LocTypeAEGL, LocTypeIDLH:
		return CategoryToxic
	case LocTypeLEL:
		return CategoryFlammable
	case LocTypeLC50:
		return CategoryEcotoxic
	default:
		return 0
	}
}

// Field variables selected from gridded outputs when a job does not name one.
const (
	VariableAirConcentration       = "air_concentration_2D"
	VariableDissolvedConcentration = "dissolved_concentration_2D"
)

// DefaultVariable returns the grid variable thresholds of this type are
// evaluated against. LC50 is an aquatic toxicity limit, the rest apply to air.
func (t LocType) DefaultVariable() string {
	if t == LocTypeLC50 {
		return VariableDissolvedConcentration
	}
	return VariableAirConcentration
}

// LocLevel is a named severity level within a LOC type.
type LocLevel int

const (
	LevelPAC1 LocLevel = iota + 1
	LevelPAC2
	LevelPAC3
	LevelPAC1Wind
	LevelAEGL1
	LevelAEGL2
	LevelAEGL3
	LevelAEGL1Confidence
	LevelAEGL2Confidence
	LevelAEGL3Confidence
	LevelLEL10
	LevelLEL60
	LevelLEL10Wind
	LevelIDLH
	LevelIDLHWind
	LevelLC50
)

type levelInfo struct {
	name    string
	locType LocType
}

var locLevels = map[LocLevel]levelInfo{
	LevelPAC1:            {"PAC-1", LocTypePAC},
	LevelPAC2:            {"PAC-2", LocTypePAC},
	LevelPAC3:            {"PAC-3", LocTypePAC},
	LevelPAC1Wind:        {"WindConfidence PAC-1", LocTypePAC},
	LevelAEGL1:           {"AEGL-1", LocTypeAEGL},
	LevelAEGL2:           {"AEGL-2", LocTypeAEGL},
	LevelAEGL3:           {"AEGL-3", LocTypeAEGL},
	LevelAEGL1Confidence: {"AEGL-1 Confidence", LocTypeAEGL},
	LevelAEGL2Confidence: {"AEGL-2 Confidence", LocTypeAEGL},
	LevelAEGL3Confidence: {"AEGL-3 Confidence", LocTypeAEGL},
	LevelLEL10:           {"10% LEL", LocTypeLEL},
	LevelLEL60:           {"60% LEL", LocTypeLEL},
	LevelLEL10Wind:       {"WindConfidence LEL 10%", LocTypeLEL},
	LevelIDLH:            {"IDLH", LocTypeIDLH},
	LevelIDLHWind:        {"WindConfidence IDLH", LocTypeIDLH},
	LevelLC50:            {"LC50", LocTypeLC50},
}

// LocLevels lists every LOC level in seeding order.
func LocLevels() []LocLevel {
	levels := make([]LocLevel, 0, len(locLevels))
	for l := LevelPAC1; l <= LevelLC50; l++ {
		levels = append(levels, l)
	}
	return levels
}

func (l LocLevel) String() string {
	if info, ok := locLevels[l]; ok {
		return info.name
	}
	return "UNKNOWN"
}

// LocType returns the LOC type the level is seeded under.
func (l LocLevel) LocType() LocType {
	return locLevels[l].locType
}

// ParseLocLevel resolves a LOC level name.
func ParseLocLevel(s string) (LocLevel, error) {
	name := strings.TrimSpace(s)
	for _, l := range LocLevels() {
		if locLevels[l].name == name {
			return l, nil
		}
	}
	return 0, &UnknownVocabularyError{Kind: "loc_level", Name: s}
}
