// Package osc encodes and decodes Open Sound Control messages.
//
// OSC is the binary control protocol spoken by scsynth. synthd only ever
// exchanges single messages (no bundles, no timetags), so this package keeps
// to the four core argument types:
//
//	i  int32, big-endian two's complement
//	f  float32, big-endian IEEE-754
//	s  printable ASCII string, NUL terminated, padded to 4 bytes
//	b  blob: uint32 big-endian length, raw bytes, padded to 4 bytes
//
// # Wire Layout
//
//	pad4(address) [ pad4("," + tags) argument-bytes... ]
//
// pad4 always appends at least one NUL, so an address that is already a
// multiple of four bytes long still gets a full word of terminator. The type
// tag section is omitted entirely for messages without arguments.
//
// # Argument Selection
//
// The tag is chosen from the Go value: integers become i, floats become f,
// strings made only of bytes 32-126 become s, and everything else that is a
// byte sequence (a []byte, or a string holding a NUL or any other
// non-printable byte) becomes b. Decoding returns int32, float32, string and
// []byte respectively.
//
// # Usage
//
//	data, err := osc.Encode("/s_new", "default", int32(1000), int32(0), int32(1))
//	if err != nil {
//	    return err
//	}
//
//	msg, err := osc.Decode(reply)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(msg.Address, msg.Args)
package osc
