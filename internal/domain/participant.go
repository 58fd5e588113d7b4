package domain

// Participant is a room member with its transient media-intent flags.
// IsMuted and IsCameraOff are user intent; device availability lives in
// the controller, not in the shared record.
type Participant struct {
	Author
	IsMuted     bool `json:"isMuted"`
	IsCameraOff bool `json:"isCameraOff"`
	// IsSpeaker splits audio-room members into speakers and listeners.
	IsSpeaker  bool `json:"isSpeaker"`
	HandRaised bool `json:"handRaised"`
}

func NewParticipant(a Author) Participant {
	return Participant{Author: a}
}

// ParticipantUpdate is a partial update to a participant's flags.
// Nil fields keep their current value. Applying an update never leaves a
// flag undefined: the target participant is a plain struct, so absent
// values are false before the merge.
type ParticipantUpdate struct {
	IsMuted     *bool
	IsCameraOff *bool
	IsSpeaker   *bool
	HandRaised  *bool
}

func (u ParticipantUpdate) ApplyTo(p *Participant) {
	if u.IsMuted != nil {
		p.IsMuted = *u.IsMuted
	}
	if u.IsCameraOff != nil {
		p.IsCameraOff = *u.IsCameraOff
	}
	if u.IsSpeaker != nil {
		p.IsSpeaker = *u.IsSpeaker
	}
	if u.HandRaised != nil {
		p.HandRaised = *u.HandRaised
	}
}

// Bool is a shorthand for building ParticipantUpdate fields.
func Bool(v bool) *bool { return &v }
