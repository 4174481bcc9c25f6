// Package remote defines the remote database a replica syncs with.
//
// A Database exchanges records. Saves carry the version the client last
// saw from the server (the base), so the server can tell a fast-forward from
// a conflicting edit. Conflicts come back as data in a SaveResult, never as
// errors; errors are reserved for transport and account problems and are
// classified by Code.
//
// Memory is an in-process Database for tests and the CLI's scenario runner.
package remote
