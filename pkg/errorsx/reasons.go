package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonSignalingRegister ReasonCode = "signaling_register"
	ReasonSignalingCall     ReasonCode = "signaling_call"
	ReasonSignalingAnswer   ReasonCode = "signaling_answer"
	ReasonSignalingRefer    ReasonCode = "signaling_refer"

	ReasonMediaAcquire ReasonCode = "media_acquire"

	ReasonCaptionConnect ReasonCode = "caption_connect"
	ReasonCaptionSend    ReasonCode = "caption_send"

	ReasonOverlappingSession ReasonCode = "overlapping_session"

	ReasonTranscriptStore    ReasonCode = "transcript_store"
	ReasonPersistenceConflict ReasonCode = "persistence_conflict"
)
