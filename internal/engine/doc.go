// Package engine treats directories of a data root as typed values.
//
// A Folder wraps a directory whose type is inferred from its content. Running
// an algorithm on a folder either creates a typed child folder (generative)
// or adds files to the folder itself (transformative). Every run is recorded
// in the folder's provenance log. Files a folder type knows how to derive are
// produced on demand by GetFile.
//
// The engine is single-threaded: one process owns a data root at a time, and
// every operation blocks until its subprocess exits.
package engine
