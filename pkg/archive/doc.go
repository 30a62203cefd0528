// Package archive reads uploaded plugin archives.
//
// An archive is a zip file containing a plugin.json entry. The directory
// holding the shallowest plugin.json becomes the package root, so archives
// with or without a top-level folder are both accepted:
//
//	hello-1.0.0/plugin.json
//	hello-1.0.0/app.js
//
//	plugin.json
//	app.js
//
// Extraction refuses entries that would escape the destination directory.
//
// The package also provides optional backups of raw archives, on the local
// filesystem or in an S3 bucket.
package archive
