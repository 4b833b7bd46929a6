package domain

// HistoricalScenario is a named, read-only MarketParameters preset
// calibrated to a historical vintage environment.
type HistoricalScenario struct {
	Name       string
	Vintage    string
	Parameters MarketParameters
}

// Historical scenario name constants.
const (
	ScenarioBaseline      = "baseline"
	ScenarioExpansion2013 = "expansion-2013"
	ScenarioDownturn2008  = "downturn-2008"
	ScenarioZIRP2021      = "zirp-2021"
)

// Predefined historical scenario presets. The durable parameter table
// seeds from these; callers should read through storage.ScenarioParamStore
// rather than this slice so overrides in the table win.
var HistoricalScenarios = []HistoricalScenario{
	{
		Name:    ScenarioBaseline,
		Vintage: "2000-2023 pooled",
		Parameters: MarketParameters{
			ExitMultiplierMedian: 2.0,
			ExitMultiplierP90:    5.0,
			FailureRate:          0.20,
			GraduationRate:       0.45,
			FollowOnProbability:  0.50,
			FollowOnFraction:     0.5,
			HoldPeriodYears:      2.0,
		},
	},
	{
		Name:    ScenarioExpansion2013,
		Vintage: "2013-2015",
		Parameters: MarketParameters{
			ExitMultiplierMedian: 2.5,
			ExitMultiplierP90:    7.0,
			FailureRate:          0.15,
			GraduationRate:       0.50,
			FollowOnProbability:  0.60,
			FollowOnFraction:     0.5,
			HoldPeriodYears:      1.8,
		},
	},
	{
		Name:    ScenarioDownturn2008,
		Vintage: "2008-2010",
		Parameters: MarketParameters{
			ExitMultiplierMedian: 1.2,
			ExitMultiplierP90:    3.0,
			FailureRate:          0.35,
			GraduationRate:       0.35,
			FollowOnProbability:  0.30,
			FollowOnFraction:     0.4,
			HoldPeriodYears:      2.5,
		},
	},
	{
		Name:    ScenarioZIRP2021,
		Vintage: "2020-2021",
		Parameters: MarketParameters{
			ExitMultiplierMedian: 3.0,
			ExitMultiplierP90:    9.0,
			FailureRate:          0.12,
			GraduationRate:       0.55,
			FollowOnProbability:  0.70,
			FollowOnFraction:     0.6,
			HoldPeriodYears:      1.5,
		},
	},
}

// FindHistoricalScenario returns the preset with the given name, or
// false if none matches.
func FindHistoricalScenario(name string) (HistoricalScenario, bool) {
	for _, s := range HistoricalScenarios {
		if s.Name == name {
			return s, true
		}
	}
	return HistoricalScenario{}, false
}
