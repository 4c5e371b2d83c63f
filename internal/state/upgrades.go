package state

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/apkupdater/apkupdaterd/api"
)

// UpgradeFuncs is a list of functions to apply in order to upgrade the version of a given state.
// Each function consumes a list of strings, each representing one line of input, and returns a
// list of strings representing the upgraded state.
type UpgradeFuncs []func([]string) ([]string, error)

// legacySourceKeys maps the per-source toggles of version 1 states to source identifiers.
var legacySourceKeys = map[string]api.SourceID{
	"Preferences.UseMirror":  api.SourceMirror,
	"Preferences.UseGitHub":  api.SourceGitHub,
	"Preferences.UseGitLab":  api.SourceGitLab,
	"Preferences.UseFDroid":  api.SourceFDroid,
	"Preferences.UseIzzy":    api.SourceIzzy,
	"Preferences.UseAptoide": api.SourceAptoide,
	"Preferences.UseApkPure": api.SourceApkPure,
}

// upgrades is a list of upgrade functions to process old states.
var upgrades = UpgradeFuncs{
	// V1: alarm settings replaced by a refresh hour and a frequency expressed in days.
	func(lines []string) ([]string, error) {
		sawFrequency := false

		for i, line := range lines {
			switch {
			case strings.HasPrefix(line, "Preferences.AlarmHour: "):
				lines[i] = strings.Replace(line, "Preferences.AlarmHour: ", "Preferences.RefreshHour: ", 1)
			case strings.HasPrefix(line, "Preferences.AlarmFrequency: "):
				sawFrequency = true

				frequency, err := strconv.Atoi(strings.TrimPrefix(line, "Preferences.AlarmFrequency: "))
				if err != nil {
					return nil, err
				}

				if frequency < 0 || frequency >= len(api.RefreshFrequencies) {
					return nil, fmt.Errorf("invalid alarm frequency %d", frequency)
				}

				lines[i] = fmt.Sprintf("Preferences.RefreshFrequencyDays: %d", api.RefreshFrequencies[frequency])
			}
		}

		// A zero alarm frequency was never written out and meant daily.
		if !sawFrequency {
			lines = append(lines, "Preferences.RefreshFrequencyDays: 1")
		}

		return lines, nil
	},
	// V2: per-source boolean toggles replaced by an ordered list of enabled sources.
	func(lines []string) ([]string, error) {
		enabled := map[api.SourceID]bool{}
		kept := make([]string, 0, len(lines))

		for _, line := range lines {
			key, value, _ := strings.Cut(line, ": ")

			source, ok := legacySourceKeys[key]
			if !ok {
				kept = append(kept, line)

				continue
			}

			on, err := strconv.ParseBool(value)
			if err != nil {
				return nil, err
			}

			enabled[source] = on
		}

		if len(enabled) == 0 {
			return kept, nil
		}

		index := 0

		for _, source := range api.DefaultSourceOrder {
			if !enabled[source] {
				continue
			}

			kept = append(kept, fmt.Sprintf("Preferences.EnabledSources[%d]: %s", index, source))
			index++
		}

		return kept, nil
	},
}
