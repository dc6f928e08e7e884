// Package wire serializes HTTP/1.x request lines and headers, and parses
// the status line and header block out of a buffered response prefix.
//
// Serialize produces the bytes written to the socket in WillSendHeaders;
// Parse consumes the bytes accumulated in ReceivingHeaders once the
// buffer ends in "\r\n\r\n". Neither function touches the network — both
// operate on byte slices already in memory, so they never block.
package wire
