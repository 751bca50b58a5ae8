package config

import "sort"

// linePresets are named service lists for "bar-pulse line".
var linePresets = map[string][]string{
	"minimal": {ServiceWeather, ServiceBattery},
	"laptop":  {ServiceNowPlaying, ServiceWeather, ServiceNetSpeed, ServiceWifi, ServiceBattery},
	"desktop": {ServiceNowPlaying, ServiceWeather, ServiceSysMetrics, ServiceNetSpeed},
	"prayer":  {ServicePrayer, ServiceWeather},
	"full": {
		ServiceNowPlaying, ServicePrayer, ServiceWeather, ServiceSysMetrics,
		ServiceNetSpeed, ServiceWifi, ServiceBluetooth, ServiceBattery, ServiceTailnet,
	},
}

// LinePreset returns the service list for a named preset.
// If the name is not recognized, the "laptop" preset is returned.
func LinePreset(name string) []string {
	p, ok := linePresets[name]
	if !ok {
		p = linePresets["laptop"]
	}
	return append([]string(nil), p...)
}

// LinePresetNames returns the preset names, sorted.
func LinePresetNames() []string {
	names := make([]string, 0, len(linePresets))
	for n := range linePresets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LineServices resolves the services "bar-pulse line" shows when none are
// given on the command line: the explicit list, else the preset.
func (c *Config) LineServices() []string {
	if len(c.Line.Services) > 0 {
		return append([]string(nil), c.Line.Services...)
	}
	return LinePreset(c.Line.Preset)
}
