package discordrpc

import (
	"os"

	"github.com/google/uuid"

	"presence-bridge/pkg/models"
)

// handshakePayload is the op=0 body.
type handshakePayload struct {
	V        string `json:"v"`
	ClientID string `json:"client_id"`
}

// setActivityFrame is the op=1 SET_ACTIVITY command body (§4.3).
type setActivityFrame struct {
	Cmd   string               `json:"cmd"`
	Args  setActivityArgs      `json:"args"`
	Nonce string               `json:"nonce"`
}

type setActivityArgs struct {
	PID      int                  `json:"pid"`
	Activity *wireActivity        `json:"activity"`
}

// wireActivity is the Discord-facing activity shape; type 2 is constant
// ("Listening") per §3/§4.3.
type wireActivity struct {
	Type       int                `json:"type"`
	Details    string             `json:"details,omitempty"`
	State      string             `json:"state,omitempty"`
	Timestamps *models.Timestamps `json:"timestamps,omitempty"`
	Assets     models.Assets      `json:"assets,omitempty"`
	Buttons    []wireButton       `json:"buttons,omitempty"`
}

type wireButton struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

const activityTypeListening = 2

func newNonce() string {
	return uuid.New().String()
}

func buildSetActivityFrame(activity models.ActivityPayload) setActivityFrame {
	wa := &wireActivity{
		Type:       activityTypeListening,
		Details:    activity.Details,
		State:      activity.StateText,
		Timestamps: activity.Timestamps,
		Assets:     activity.Assets,
	}
	for _, b := range activity.Buttons {
		wa.Buttons = append(wa.Buttons, wireButton{Label: b.Label, URL: b.URL})
	}

	return setActivityFrame{
		Cmd: "SET_ACTIVITY",
		Args: setActivityArgs{
			PID:      os.Getpid(),
			Activity: wa,
		},
		Nonce: newNonce(),
	}
}

func buildClearFrame() setActivityFrame {
	return setActivityFrame{
		Cmd: "SET_ACTIVITY",
		Args: setActivityArgs{
			PID:      os.Getpid(),
			Activity: nil,
		},
		Nonce: newNonce(),
	}
}
