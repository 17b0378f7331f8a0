// Package drive talks to the Google Drive v3 REST API. Client
// implements the Store boundary over resty with transport-level
// retries and rate limiting; Resolver layers the path semantics used
// by the upload session on top of any Store.
package drive
