// Package decode implements the streaming body-decoding pipeline: a
// composable chain of pull-style byte decoders applied to the raw socket
// byte stream as it arrives, never blocking and never reading past what
// has already been fed to it.
//
// [Build] inspects a response's Transfer-Encoding and Content-Encoding
// header values and constructs the appropriate chain over a [Pipeline],
// whose bottom always accepts freshly-read socket bytes via Feed and
// whose top is read by the scheduler in ReceivingBody via Read.
package decode
