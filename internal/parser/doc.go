// Package parser turns raw dataroma pages into model records.
//
// Three page kinds are understood: the manager roster, a manager's
// holdings table and a manager's activity history. Parsing never fails
// as a whole. A row that cannot be decoded is skipped with a warning and
// the remaining rows are still returned; a numeric cell that cannot be
// read becomes zero.
//
// The activity history is the awkward one. Its table body is a flat run
// of quarter header rows and groups of five cells that are not wrapped in
// a common row, so ParseActivities walks it as a token stream and carries
// the last seen quarter forward onto every group that follows.
package parser
