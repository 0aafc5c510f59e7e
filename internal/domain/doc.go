// Package domain models U.S. gun-violence incident and firearm-policy data.
//
// # Data Sources
//
// Incidents come from three upstream CSV files with diverged schemas:
//
//	Historical (1985–2018): one row per victim, columns
//	  incident_id, year, month, Latitude, Longitude, state.
//	  Every row counts as killed=1, injured=0.
//
//	Recent (2019–2025): one row per incident, columns
//	  Incident ID, Incident Date, State, City Or County, Address,
//	  Latitude, Longitude, Victims Killed, Victims Injured, County_Name.
//
//	Current year: same schema as recent, plus a "Geocoding Match" column
//	  with values Match / No_Match. No_Match rows carry synthetic state
//	  centroids and are dropped.
//
// The files are version-forked: older exports use "City" where newer ones
// use "City Or County", and "County_Name" is sometimes absent. Column
// resolution tolerates the variants (see [ResolveColumns]).
//
// # Known Data Quirks
//
// Rows geocoded to exactly (0, 0) are placeholder failures and are dropped.
// "Incident Date" appears as "3/4/2022", "2022-03-04", or "March 4, 2022"
// depending on export vintage. The policy JSON producer emits bare NaN
// tokens where numeric stats are missing; the loader substitutes null
// before parsing.
//
// # ID Generation
//
// Rows without an upstream ID get a deterministic SHA-256 hash of
// source|lat|lng|year|ordinal, so reloading the same file yields the same
// IDs and downstream consumers can dedupe on replay. See [GenerateID].
package domain
