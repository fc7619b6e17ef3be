// Package domain models daily air-pollutant series and the forecasting core.
//
// # Data Source
//
// Readings come from a merged table of satellite-derived and ground-station
// measurements joined on (date, city, country). Each pollutant appears twice,
// once per source, and the column key carries the source as a suffix:
//
//	PM2.5_sat, PM2.5_ground, PM10_sat, NO2_level_ground, ...
//
// The raw merge produces pandas-style "_x" (satellite) and "_y" (ground)
// suffixes; loaders rename them before building a [Series].
//
// # Series
//
// A [Series] is one (city, column) pair: daily points, ascending, one point per
// calendar day, finite values only. [NewSeries] enforces this; missing cells
// never reach the forecaster.
//
// # Classification
//
// [Classify] maps a value to one of five bands using inclusive upper bounds:
//
//	<=50 Good | <=100 Moderate | <=150 Unhealthy | <=200 Very Unhealthy | else Hazardous
//
// # Forecasting
//
// [Forecaster] tries two strategies in order:
//
//	model      stored model for the column AND >= 7 points. The last 7 values
//	           form a window; each prediction is appended and the oldest value
//	           dropped, so step k sees predictions 1..k-1.
//	smoothing  >= 3 points. Each step emits the mean of the last min(n, 7)
//	           values of a working series that grows by every emitted mean.
//
// Model load and predict failures are logged and the forecaster falls back to
// smoothing. Fewer than 3 points yields [InsufficientDataError]. A successful
// forecast always has exactly horizon points dated last+1 .. last+horizon days.
package domain
