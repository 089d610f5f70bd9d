package backends

// Usage restricts which programs should accept a given backend.
//
// In Go, "plugins" are linked at build time: a backend registers itself via init(),
// and is enabled in a binary by importing the backend package (often as a blank import).
type Usage uint8

const (
	// UsageServer marks backends the registry service may store node infos in.
	UsageServer Usage = 1 << iota
	// UsageDaemon marks backends netmap-storegrpcd may expose over gRPC.
	UsageDaemon
)

func (u Usage) allows(want Usage) bool { return u&want != 0 }
