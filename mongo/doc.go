// Package mongo stores the mail queue in a MongoDB collection.
//
// Each entry is one document keyed by the lowercase UUIDv7 string, so sorting
// on _id gives insertion order. Claims use FindOneAndUpdate, which MongoDB
// applies atomically to a single document.
package mongo
