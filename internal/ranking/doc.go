// Package ranking loads the deploy-time calibration of the scorers: the
// scarcity curve and the search weights.
//
// Basic usage:
//
//	cal, err := ranking.LoadCalibration(cfg.CalibrationPath)
//	if err != nil {
//		logger.Warn("using default calibration", "error", err)
//	}
//	metrics := scarcity.ScoreWithCurve(total, higher, cal.Scarcity)
//	results := search.RankWithWeights(q, candidates, limit, cal.Search)
//
// Calibration files are JSON. Fields left out of a file keep their default
// value, so a file may override a single constant. Changes need a restart.
// See configs/ranking.calibration.json for the shipped defaults.
package ranking
