// Package github implements the provider interface for GitHub Apps:
// authorization against github.com, code exchange and refresh through the
// standard OAuth token endpoint, and installation discovery through the
// user installations listing of the REST API.
package github
