package main

// User-facing command strings, kept together so wording stays
// consistent across commands.
const (
	MsgRootShort = "A small archive-based package manager"
	MsgRootLong = `ipak installs, removes and inspects packages shipped as
self-describing archives. State lives per user by default and
system-wide when run with elevated privileges.`

	MsgFlagVerbose = "Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)"
	MsgFlagLocal   = "Operate on the per-user scope"
	MsgFlagGlobal  = "Operate on the system-wide scope (requires elevation)"

	MsgInstallShort = "Install a package archive and its dependencies"
	MsgInstallLong = `Install resolves the archive's dependency graph, looks up
dependency archives next to the named file, and installs the
whole plan dependencies-first into the selected scope.`

	MsgRemoveShort = "Remove a package, keeping its configuration files"
	MsgPurgeShort  = "Remove a package including its configuration files"
	MsgListShort   = "List installed packages in the selected scope"
	MsgPlanShort   = "Show the install plan for an archive without installing"
	MsgMetaShort   = "Print the metadata embedded in a package archive"

	MsgPackShort = "Build a package archive from a source tree"
	MsgPackLong = `Pack reads ipak.toml from the source directory and serializes
the tree into a deterministic package archive.`

	MsgExtractShort = "Unpack an archive without recording install state"
)
