package segmentation

import "github.com/banshee-data/eventseg/internal/config"

// ParametersFromTuning builds a Parameters value from a feature's tuning
// section. Unset fields take the built-in defaults.
func ParametersFromTuning(f *config.FeatureTuning) *Parameters {
	if f == nil {
		f = &config.FeatureTuning{}
	}
	return &Parameters{
		PLagPlus:    f.GetPLagPlus(),
		PLagMinus:   f.GetPLagMinus(),
		Alpha:       f.GetAlpha(),
		R:           f.GetR(),
		CStayOff:    f.GetCStayOff(),
		CStayOn:     f.GetCStayOn(),
		CTurnOn:     f.GetCTurnOn(),
		CTurningOn:  f.GetCTurningOn(),
		CTurnOff:    f.GetCTurnOff(),
		CNewSegment: f.GetCNewSegment(),
		XInit:       f.GetXInit(),
		PInit:       f.GetPInit(),
		MinValue:    f.GetMinValue(),
		MaxValue:    f.GetMaxValue(),
	}
}

// SegmenterConfigFromTuning extracts the global segmentation settings.
func SegmenterConfigFromTuning(cfg *config.TuningConfig) SegmenterConfig {
	return SegmenterConfig{
		PNew:            cfg.GetPNew(),
		POff:            cfg.GetPOff(),
		MaxFeatures:     cfg.GetMaxFeatures(),
		MaxTrellisCells: cfg.GetMaxTrellisCells(),
		Workers:         cfg.GetWorkers(),
	}
}

// DefaultSegmenterConfig returns the settings from the canonical tuning
// defaults file (config/tuning.defaults.json). It panics when the file
// cannot be found, so it is intended for tests and tools run from the
// repository.
func DefaultSegmenterConfig() SegmenterConfig {
	return SegmenterConfigFromTuning(config.MustLoadDefaultConfig())
}
