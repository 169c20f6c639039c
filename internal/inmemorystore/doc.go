// Package inmemorystore keeps job records in a sync.Map. It backs runs that
// were started without --state-db, so records live only as long as the
// process.
package inmemorystore
