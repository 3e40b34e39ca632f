package model

// Category classifies an encounter for webhook gating.
type Category int

// Encounter categories.
const (
	CategoryRaid Category = iota
	CategoryFractal
	CategoryStrike
	CategoryGolem
	CategoryWvW
)

// String returns the lowercase category name.
func (c Category) String() string {
	switch c {
	case CategoryFractal:
		return "fractal"
	case CategoryStrike:
		return "strike"
	case CategoryGolem:
		return "golem"
	case CategoryWvW:
		return "wvw"
	default:
		return "raid"
	}
}

// WvW reports carry a fixed pseudo boss ID.
const wvwBossID = 1

var fractalBosses = map[int]struct{}{
	17021: {}, // MAMA
	17028: {}, // Siax
	16948: {}, // Ensolyss
	17632: {}, // Skorvald
	17949: {}, // Artsariiv
	17759: {}, // Arkk
	23254: {}, // Ai, Keeper of the Peak
	25577: {}, // Kanaxai
	26231: {}, // Eparch
}

var strikeBosses = map[int]struct{}{
	22154: {}, // Icebrood Construct
	22343: {}, // Voice and Claw of the Fallen
	22481: {}, // Fraenir of Jormag
	22492: {}, // Boneskinner
	22711: {}, // Whisper of Jormag
	22836: {}, // Cold War
	25413: {}, // Aetherblade Hideout
	25414: {}, // Xunlai Jade Junkyard
	25416: {}, // Kaineng Overlook
	25705: {}, // Harvest Temple
	25989: {}, // Old Lion's Court
	26257: {}, // Cosmic Observatory
	26725: {}, // Temple of Febe
}

var golemBosses = map[int]struct{}{
	16199: {}, // Standard Kitty Golem
	19645: {}, // Medium Kitty Golem
	19676: {}, // Large Kitty Golem
}

// Categorize maps an encounter boss ID to its webhook category. IDs
// outside the known fractal, strike, golem, and WvW sets count as raid
// encounters.
func Categorize(bossID int) Category {
	if bossID == wvwBossID {
		return CategoryWvW
	}
	if _, ok := fractalBosses[bossID]; ok {
		return CategoryFractal
	}
	if _, ok := strikeBosses[bossID]; ok {
		return CategoryStrike
	}
	if _, ok := golemBosses[bossID]; ok {
		return CategoryGolem
	}
	return CategoryRaid
}
