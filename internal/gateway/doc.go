// Package gateway exposes agent route operations as a JSON HTTP API.
package gateway
