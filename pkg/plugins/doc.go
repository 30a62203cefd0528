// Package plugins models a single extension package discovered on disk.
//
// # Overview
//
// A plugin is a directory containing a plugin.json manifest plus any assets it
// serves. Loading a plugin reads the manifest, picks a handler kind and builds
// the routable subtree that the registry mounts under /plugins/{id}.
//
// # Manifest
//
// The manifest is a JSON object with at least an "id" field. "name" and
// "version" name the canonical folder ({name}-{version}). Every other field is
// kept verbatim and forwarded to the catalog, except the code payload fields
// ("server.js", "client.js") which never leave the process.
//
//	{
//		"id": "a1",
//		"name": "alpha",
//		"version": "1.0",
//		"handler": "static",
//		"description": "Example plugin"
//	}
//
// # Lifecycle
//
// Load the plugin, attach it, then mount its handler:
//
//	p, err := plugins.Load("/srv/plugins/alpha-1.0", plugins.DefaultHandlers())
//	if err != nil {
//		return err
//	}
//	p.Attach()
//	router.Handle("/plugins/a1", p)
//
// A detached plugin answers 404 for every request. Attach and Detach are
// idempotent.
//
// # Handler kinds
//
// The manifest "handler" field selects how the subtree is built. The built-in
// "static" kind serves GET / and GET /info with the manifest infos and
// GET /files/{path} with files from the plugin directory. Hosts add kinds by
// registering a HandlerFactory.
//
// # Related Packages
//
//   - pkg/registry: Mounts plugins and drives their lifecycle
//   - pkg/catalog: Persists manifest fields
//   - pkg/archive: Installs plugins from uploaded zip archives
package plugins
