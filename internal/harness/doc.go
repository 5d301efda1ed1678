// Package harness runs end-to-end scenarios against the dds command line.
//
// A scenario describes a data root, the fake tools its algorithms call, a
// flow of command lines and assertions on the resulting folders.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: gmsh_pipeline
//	description: "What this scenario validates"
//	files:
//	  MAMBO/B0/CAD.step: "ISO-10303-21;"
//	tools:
//	  Gmsh: |
//	    echo meshing
//	flow:
//	  - run: [gmsh, MAMBO/B0]
//	    expect:
//	      exit: 0
//	      stdout: "Gmsh: ok"
//	assertions:
//	  - type: folder_type
//	    folder: MAMBO/B0/Gmsh_0.1
//	    folder_type: tet-mesh
//
// Tool references are paths below a tools directory; the first segment of
// each becomes an entry of the generated settings file.
//
// # Assertion Types
//
//   - file_exists, file_absent: a path relative to the data root
//   - folder_type: the inferred type of a folder
//   - history_count: the number of entries in a folder's info.json
//   - history_contains: an entry of the given algorithm (and return code)
//   - collection_folders: the folders a collection resolves to
//
// # Deterministic Runs
//
// Every scenario runs in a fresh directory with a fake clock starting at
// 2024-03-01T10:00:00Z and advancing one minute after each step, so
// provenance keys and the recorded trace are reproducible and can be
// compared against golden files.
package harness
