// Package database opens the PostgreSQL pool used by the recorder and
// creates the topic_updates table it writes to.
package database
