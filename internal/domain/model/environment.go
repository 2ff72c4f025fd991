package model

// Environment is the tuple of client-observable attributes the storage
// passphrase is derived from. It is not secret; it only ties stored data to
// the machine and session that wrote it.
type Environment struct {
	UserAgent      string
	Locale         string
	ColorDepth     string
	Resolution     string
	TimezoneOffset string
	Processors     string
}

// Attributes returns the fields in their fixed derivation order.
func (e Environment) Attributes() []string {
	return []string{
		e.UserAgent,
		e.Locale,
		e.ColorDepth,
		e.Resolution,
		e.TimezoneOffset,
		e.Processors,
	}
}
