package matcher

// Directory resolves a radio ID to a callsign. It backs matcher queries
// whose patterns key on callsign when the peer's own RPTC callsign is
// empty or untrusted. The zero value (nil Directory) is valid: matcher
// then relies solely on the peer-supplied callsign.
type Directory interface {
	Lookup(radioID uint32) (callsign string, ok bool)
}

// NopDirectory never resolves anything. It is the default when no
// directory backend is configured.
type NopDirectory struct{}

func (NopDirectory) Lookup(uint32) (string, bool) { return "", false }
