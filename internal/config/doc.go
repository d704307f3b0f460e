// Package config loads the options of a tree and its command line host.
//
// Options come from three places, later ones overriding earlier ones:
//
//  1. Built-in defaults (Default)
//  2. A TOML or YAML file, chosen by extension
//  3. Environment variables with the ARBOR_ prefix
//
// Unknown keys and values of the wrong type never fail a load. They are
// logged as warnings, recorded in Config.Warnings and ignored, so an old
// file keeps working after a key is retired.
//
// # Example
//
//	cfg, err := config.Load("arbor.toml")
//	if err != nil {
//	    return err
//	}
//	t, err := tree.New(doc, cfg.TreeOptions()...)
//
// A file may request plugins as a list of names, a list of tables with name
// and options, or a table keyed by plugin name:
//
//	prefix = "data-treejs-"
//	fetch_timeout = "10s"
//	plugin_paths = ["~/.config/arbor/plugins"]
//
//	[[plugins]]
//	name = "checkbox"
//	options = { cascade = false }
//
// In YAML the table form keeps the order of the document.
package config
