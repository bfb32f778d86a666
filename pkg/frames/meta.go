package frames

// Meta keys attached to frames as they move between the recorder, the
// caption link, and the transcript aggregator.
const (
	MetaChannel  = "channel"
	MetaCallID   = "call_id"
	MetaSource   = "source"
	MetaSpeaker  = "speaker"
	MetaSequence = "sequence"
	MetaIsFinal  = "is_final"
	MetaMime     = "mime"
)
