// Package api exposes chat, document management, search and image
// analysis over HTTP using gin.
//
// Errors are returned as {"detail": message} with a status derived from
// the error: validation failures are 400, missing records 404, missing
// vision support 503 and everything else 500. Streaming chat uses
// server-sent events named metadata, token, done and error.
package api
