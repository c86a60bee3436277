// File: driver/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package driver implements the platform I/O backends behind api.Driver:
// io_uring and epoll on Linux, kqueue on the BSD family. Backend
// selection happens once, at construction time, through the factory;
// after that every backend speaks the same SubmitEntry/CompletionEntry
// contract and round-trips UserData byte-for-byte.
package driver
