// Package domain models level-of-concern (LOC) hazard zones produced by
// dispersion and spill models.
//
// # Hierarchy
//
// Every zone persisted by this service hangs off a five-level identity
// hierarchy, each level keyed by its natural key:
//
//	Model(name)
//	Campaign(name)
//	  Simulation(campaign, model, name)
//	    Output(simulation, initial_date, output_type)
//	      Loc(output, loc_type)
//	        Line(loc, loc_level)  envelope polygon, SRID 4326
//
// Rows are created lazily by the first ingestion that references their
// natural key and are never updated. A Line that already exists for a
// (loc, loc_level) pair is left untouched, which makes re-ingesting a file a
// no-op.
//
// # Vocabulary
//
// LOC types and LOC levels are closed vocabularies ([LocType], [LocLevel])
// seeded into reference tables by the migration. Each type maps to a hazard
// [Category]:
//
//	PAC, AEGL, IDLH  TOXIC
//	LEL              FLAMMABLE
//	LC50             ECOTOXIC
//
// Level names follow the labels emitted by ALOHA threat-zone exports
// ("AEGL-1 Confidence", "WindConfidence PAC-1", "10% LEL", ...) so polygons
// rendered by ALOHA and contours computed from gridded model output share a
// single level table.
//
// # Time
//
// Output initial dates are normalized to UTC and truncated to whole seconds
// before they are used as keys. Grid sources contribute the first time step of
// the file; ALOHA jobs carry an explicit date in the job document.
package domain
