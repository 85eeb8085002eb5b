package frame

// Build returns the wire form of one frame carrying payload.
func Build(cmd CommandID, payload []byte) ([]byte, error) {
	return Encode(cmd, payload)
}

// BuildHeaderOnly returns a zero-payload frame, e.g. a heartbeat.
func BuildHeaderOnly(cmd CommandID) []byte {
	return EncodeHeader(Header{TotalLength: HeaderLen, CommandID: cmd})
}
