package game

import "fmt"

// ID identifies a supported HoYoverse game
type ID string

const (
	Genshin  ID = "genshin"
	StarRail ID = "hkrpg"
	Zenless  ID = "nap"
)

// all is the closed set of supported games; new games require a code change
var all = []ID{Genshin, StarRail, Zenless}

var names = map[ID]string{
	Genshin:  "Genshin Impact",
	StarRail: "Honkai: Star Rail",
	Zenless:  "Zenless Zone Zero",
}

var redeemURLs = map[ID]string{
	Genshin:  "https://genshin.hoyoverse.com/en/gift",
	StarRail: "https://hsr.hoyoverse.com/gift",
	Zenless:  "https://zenless.hoyoverse.com/redemption",
}

// All returns every supported game in a fixed order
func All() []ID {
	out := make([]ID, len(all))
	copy(out, all)
	return out
}

// Parse validates an externally supplied game identifier
func Parse(s string) (ID, error) {
	id := ID(s)
	if _, ok := names[id]; !ok {
		return "", fmt.Errorf("unknown game: %s", s)
	}
	return id, nil
}

// Valid reports whether id is a supported game
func (id ID) Valid() bool {
	_, ok := names[id]
	return ok
}

// Name returns the human-readable name of the game
func (id ID) Name() string {
	if name, ok := names[id]; ok {
		return name
	}
	return string(id)
}

// RedeemURL builds the redemption link for a code
func (id ID) RedeemURL(code string) string {
	base, ok := redeemURLs[id]
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s?code=%s", base, code)
}
