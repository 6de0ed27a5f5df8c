// Package factory captures figures as workflows.
//
// Capture reproduces the workflow a figure was built from, including
// processor chains with their input references unresolved, so a figure
// composed interactively can be saved and replayed. FromMaps does the same
// for maps composed outside a run, generating a path input and a data
// source per map.
package factory
