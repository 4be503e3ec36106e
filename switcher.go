// switcher.go: Switcher client contract consumed by the engine
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package copilot

// InputDescriptor describes one switcher input.
type InputDescriptor struct {
	LongName  string `json:"longName"`
	ShortName string `json:"shortName,omitempty"`
}

// MixEffect is the state of one mix-effect block.
type MixEffect struct {
	ProgramInput       int `json:"programInput"`
	PreviewInput       int `json:"previewInput"`
	TransitionPosition int `json:"transitionPosition"`
}

// VideoState holds the routing part of a switcher snapshot.
type VideoState struct {
	MixEffects  []MixEffect `json:"mixEffects"`
	Auxiliaries []int       `json:"auxiliaries"`
}

// SwitcherState is a full switcher snapshot as delivered with every
// notification.
type SwitcherState struct {
	Inputs map[int]InputDescriptor `json:"inputs"`
	Video  VideoState              `json:"video"`
}

// Clone returns a deep copy of the snapshot.
func (s SwitcherState) Clone() SwitcherState {
	out := SwitcherState{
		Inputs: make(map[int]InputDescriptor, len(s.Inputs)),
		Video: VideoState{
			MixEffects:  append([]MixEffect(nil), s.Video.MixEffects...),
			Auxiliaries: append([]int(nil), s.Video.Auxiliaries...),
		},
	}
	for id, in := range s.Inputs {
		out.Inputs[id] = in
	}
	return out
}

// SwitcherListener receives the notifications a switcher client produces.
// Implementations are called on the client's own goroutine.
type SwitcherListener interface {
	OnConnected()
	OnDisconnected()
	OnStateChanged(state SwitcherState, changedPaths []string)
	OnError(err error)
}

// Switcher is the client of a two-ME video switcher. The engine only drives
// it through this interface and never speaks the wire protocol itself.
//
// Commands are fire-and-forget: a nil error means the command was accepted
// for sending, the confirmation arrives later as a state change.
type Switcher interface {
	SetListener(l SwitcherListener)
	Connect(address string) error
	Disconnect() error
	State() SwitcherState

	ChangeProgramInput(input, me int) error
	ChangePreviewInput(input, me int) error
	SetAuxSource(input, aux int) error
	Cut(me int) error
}
