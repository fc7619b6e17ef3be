package service

import "sort"

// sortAlerts orders by band descending, then value descending, then city and
// country.
func sortAlerts(alerts []Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		a, b := alerts[i], alerts[j]
		if a.Band != b.Band {
			return a.Band > b.Band
		}
		if a.Value != b.Value {
			return a.Value > b.Value
		}
		if a.City != b.City {
			return a.City < b.City
		}
		return a.Country < b.Country
	})
}
