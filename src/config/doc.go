// Package config defines the configuration of a mempool node.
//
// Whether the node is started from Go code or from the command line, it uses
// the Config object defined in this package. On top of these options, the
// node relies on a data directory, defined by Config.DataDir, where it expects
// to find a few additional files:
//
//	priv_key   // the hex encoded private key of the validator (cf. mempool keygen).
//	peers.json // a JSON file containing the committee.
//	mempool.toml // (optional) values for any of the options below.
package config
