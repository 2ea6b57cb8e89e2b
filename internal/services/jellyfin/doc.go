// Package jellyfin is a small HTTP client for the Jellyfin endpoints used to
// read the catalog and write descriptions back.
//
// Requests authenticate with the X-Emby-Token header. Non-2xx responses are
// returned as *StatusError so callers can classify them by status code.
package jellyfin
