// Package provider wraps the supported text-generation backends behind a
// single Generator capability.
//
// The backend is selected once by New from the [provider] configuration.
// Every call returns a Result value: Success carries the generated text, the
// token count, and the estimated cost; Failure carries an ErrorKind the
// pipeline records as a skip reason. Calls are never retried here.
package provider
