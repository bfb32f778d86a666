package captions

// Channel names one leg of the captured audio.
type Channel string

const (
	ChannelLocal  Channel = "local"
	ChannelRemote Channel = "remote"
)

// SpeakerLabel maps a channel to the party speaking on it. The local
// channel carries this device's microphone, so its label depends on who
// placed the call.
func SpeakerLabel(channel Channel, isCaller bool) string {
	if channel == ChannelLocal {
		if isCaller {
			return "Caller"
		}
		return "Receiver"
	}
	if isCaller {
		return "Receiver"
	}
	return "Caller"
}
