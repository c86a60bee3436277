// File: transport/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package transport provides nonblocking TCP and UDP sockets and the
// bind/connect state machines that resolve them through the driver.
// Sockets do not perform I/O themselves; they mint SubmitEntry values
// that the owning task hands to the driver.
package transport
