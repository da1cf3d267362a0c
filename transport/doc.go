// Package transport provides mailqueue.Transport implementations: Log writes
// each message to a logger and SMTP delivers it to a mail submission server.
package transport
