// Package domain models the flood rasters, derived products and provenance
// records shared by every stage of the hazard pipeline.
//
// # Data Source
//
// Flood studies deliver one Depth and one Velocity raster per study area and
// annual exceedance (return period) year. Rasters are registered in a layer
// catalog under a fixed grouping:
//
//	Flood maps/
//	  Depths/<area>/<layer>       e.g. "Concongella_2015_10y_d_Max"
//	  Velocity/<area>/<layer>     e.g. "Concongella_2015_10y_v_Max"
//	  VelocityXDepth/<area>/<area>_<year>y_VD      (derived)
//	  Hazard/<area>/<area>_<year>y_Hazard          (derived)
//
// Layer names are not normalised. The return period is the only reliable
// token, so a layer is matched to a year by finding the year as a standalone
// digit run in its name ("_10y_" is year 10, "_100y_" is not).
//
// # Derived Products
//
// VD (velocity x depth, m²/s) is the elementwise product of the Velocity and
// Depth rasters, stored as Float32 with nodata -9999.
//
// Hazard is the ARR combined hazard classification (Smith et al., 2014,
// Australian Rainfall and Runoff Table 6.7.4), stored as Byte:
//
//	H1  generally safe for vehicles, people and buildings
//	H2  unsafe for small vehicles
//	H3  unsafe for vehicles, children and the elderly
//	H4  unsafe for vehicles and people
//	H5  unsafe for vehicles and people, buildings vulnerable
//	H6  all building types vulnerable to failure
//
// Class 0 is both "no hazard computed" and the nodata value.
//
// # Provenance
//
// Each stage writes a ledger (CSV) listing every output that is present after
// the run and the catalog paths of the sources it was derived from. The
// hazard stage is driven exclusively by the VD ledger.
package domain
