package weather

// iconGroups maps wttr.in (WorldWeatherOnline) condition codes to the icon
// keys widgets use to pick a glyph.
var iconGroups = map[string][]string{
	"clear":         {"113"},
	"partly-cloudy": {"116"},
	"cloudy":        {"119"},
	"overcast":      {"122"},
	"fog":           {"143", "248", "260"},
	"rain-light":    {"176", "263", "266", "293", "296", "353"},
	"rain-heavy":    {"299", "302", "305", "308", "356", "359"},
	"sleet":         {"179", "182", "185", "281", "284", "311", "314", "317", "350", "362", "365", "374", "377"},
	"snow":          {"227", "230", "323", "326", "329", "332", "335", "338", "368", "371", "392", "395"},
	"thunder":       {"200", "386", "389"},
}

var iconByCode = func() map[string]string {
	m := make(map[string]string)
	for key, codes := range iconGroups {
		for _, c := range codes {
			m[c] = key
		}
	}
	return m
}()

// glyphs are Nerd Font weather icons keyed by icon key.
var glyphs = map[string]string{
	"clear":         "\U000F0599",
	"partly-cloudy": "\U000F0595",
	"cloudy":        "\U000F0590",
	"overcast":      "\U000F0590",
	"fog":           "\U000F0591",
	"rain-light":    "\U000F0597",
	"rain-heavy":    "\U000F0596",
	"sleet":         "\U000F067F",
	"snow":          "\U000F0598",
	"thunder":       "\U000F0593",
	"unknown":       "\U000F0F2F",
}

// IconKey returns the icon key for a condition code, or "unknown".
func IconKey(code string) string {
	if k, ok := iconByCode[code]; ok {
		return k
	}
	return "unknown"
}

// Glyph returns the Nerd Font glyph for an icon key.
func Glyph(key string) string {
	if g, ok := glyphs[key]; ok {
		return g
	}
	return glyphs["unknown"]
}
