// Package api provides the HTTP surface of the plugin host.
//
// # Overview
//
// The API exposes the plugin store, the catalog administration endpoints and
// the plugin subtrees themselves on a single gorilla/mux router:
//
//	GET    /plugin_store                 list the infos of every live plugin
//	POST   /plugin_store                 install an uploaded archive
//	DELETE /plugin_store                 delete every live plugin
//	GET    /plugin_store/{id}            infos of one plugin
//	POST   /plugin_store/{id}            update a plugin from an uploaded archive
//	DELETE /plugin_store/{id}            delete a plugin
//	POST   /plugin_store/{id}/enable     enable the catalog record
//	POST   /plugin_store/{id}/disable    disable the catalog record
//	GET    /plugin_catalog               list the catalog records
//	*      /plugins/{id}/...             delegated to the plugin's subtree
//
// Lifecycle operations answer with a result object, either {"id": "..."} or
// {"error": "..."}. The status code of a failure comes from HTTPStatus.
//
// # Disabled store
//
// When the plugin root is not usable at startup the host mounts
// DisabledHandlers instead, which answers every store and plugin path with
// 401 and the reason.
//
// # Usage
//
//	store := api.NewStoreHandlers(reg, api.StoreOptions{Logger: log})
//	server := api.NewServer(log, []api.RouteRegistrar{store})
//	http.ListenAndServe(":8080", server)
package api
